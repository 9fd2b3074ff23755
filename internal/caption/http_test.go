package caption

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
)

func testCaptioner(endpoint string) *HTTPCaptioner {
	c := NewHTTPCaptioner(endpoint, 2*time.Second)
	c.encode = func(f *camera.Frame) ([]byte, error) {
		return []byte("jpeg-bytes"), nil
	}
	return c
}

func testFrame(seq uint64) *camera.Frame {
	return camera.NewFrame(make([]byte, 3), 1, 1, seq)
}

func TestCaptionDecodesServiceResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("Content-Type = %q, want image/jpeg", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "jpeg-bytes" {
			t.Errorf("body = %q, want encoded frame", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"caption":"a red bicycle","confidence":0.87}`)
	}))
	defer srv.Close()

	got, err := testCaptioner(srv.URL).Caption(context.Background(), testFrame(12))
	if err != nil {
		t.Fatalf("Caption failed: %v", err)
	}
	if got.Text != "a red bicycle" || got.Confidence != 0.87 {
		t.Fatalf("result = %+v, want service response", got)
	}
	if got.Seq != 12 {
		t.Fatalf("Seq = %d, want the frame's sequence", got.Seq)
	}
	if got.At.IsZero() {
		t.Fatal("At not stamped")
	}
}

func TestCaptionFailuresAreInferenceErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "service error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "not json")
			},
		},
		{
			name: "confidence out of range",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"caption":"x","confidence":1.5}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := testCaptioner(srv.URL).Caption(context.Background(), testFrame(1))
			if err == nil {
				t.Fatal("expected an error")
			}
			var infErr *InferenceError
			if !errors.As(err, &infErr) {
				t.Fatalf("error %T not an InferenceError", err)
			}
		})
	}
}

func TestCaptionHonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := testCaptioner(srv.URL).Caption(ctx, testFrame(1))
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("error %T not an InferenceError", err)
	}
}

func TestFuncAdapter(t *testing.T) {
	want := Result{Text: "adapted", Confidence: 0.5}
	c := Func(func(ctx context.Context, f *camera.Frame) (Result, error) {
		return want, nil
	})
	got, err := c.Caption(context.Background(), testFrame(1))
	if err != nil || got != want {
		t.Fatalf("Caption = (%+v, %v), want (%+v, nil)", got, err, want)
	}
}

func TestInferenceErrorUnwraps(t *testing.T) {
	cause := errors.New("backend gone")
	err := &InferenceError{Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("InferenceError does not unwrap to its cause")
	}
}
