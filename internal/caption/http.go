package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/imgconv"
)

// HTTPCaptioner sends JPEG frames to a captioning inference service and
// decodes its (text, confidence) response. Model selection and loading are
// the service's problem, not ours.
type HTTPCaptioner struct {
	endpoint string
	client   *http.Client
	encode   func(*camera.Frame) ([]byte, error)
	logger   *zap.Logger
}

// NewHTTPCaptioner creates a client for the given inference endpoint.
// timeout bounds each request end to end.
func NewHTTPCaptioner(endpoint string, timeout time.Duration) *HTTPCaptioner {
	return &HTTPCaptioner{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		encode:   imgconv.EncodeJPEG,
		logger:   zap.L().Named("captioner"),
	}
}

type captionResponse struct {
	Caption    string  `json:"caption"`
	Confidence float64 `json:"confidence"`
}

// Caption posts the frame as a JPEG and returns the decoded result. Any
// failure is wrapped in InferenceError so the captioning loop can contain
// it to a single skipped cycle.
func (c *HTTPCaptioner) Caption(ctx context.Context, f *camera.Frame) (Result, error) {
	payload, err := c.encode(f)
	if err != nil {
		return Result{}, &InferenceError{Err: fmt.Errorf("encode frame: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, &InferenceError{Err: err}
	}
	req.Header.Set("Content-Type", "image/jpeg")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, &InferenceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, &InferenceError{Err: fmt.Errorf("inference service returned %d: %s", resp.StatusCode, body)}
	}

	var decoded captionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, &InferenceError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Confidence < 0 || decoded.Confidence > 1 {
		return Result{}, &InferenceError{Err: fmt.Errorf("confidence %v outside [0,1]", decoded.Confidence)}
	}

	c.logger.Debug("caption generated",
		zap.Uint64("frame_seq", f.Seq),
		zap.Float64("confidence", decoded.Confidence),
		zap.Duration("latency", time.Since(start)))

	return Result{
		Text:       decoded.Caption,
		Confidence: decoded.Confidence,
		Seq:        f.Seq,
		At:         time.Now(),
	}, nil
}
