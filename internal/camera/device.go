// Package camera owns the camera collaborator: device acquisition with
// backend fallback, frame reads, and release.
package camera

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/config"
)

// ErrResourceUnavailable indicates the camera could not be acquired or
// reacquired. It is fatal to the capture loop and surfaces from the
// supervisor's Start.
var ErrResourceUnavailable = errors.New("camera resource unavailable")

// Device is an acquired camera handle. ReadFrame returns a raw BGR frame
// or an error for a single failed read; single-read failures are transient
// and retried by the caller.
type Device interface {
	ReadFrame() (*Frame, error)
	Close() error
}

// Opener acquires a camera. The capture loop holds an Opener so it can
// release and reacquire the device after sustained read failures.
type Opener interface {
	Open() (Device, error)
}

// defaultBackends is the ordered list of capture APIs to attempt, mirroring
// the multi-backend acquisition fallback of the capture stack.
var defaultBackends = []gocv.VideoCaptureAPI{
	gocv.VideoCaptureV4L2,
	gocv.VideoCaptureGstreamer,
	gocv.VideoCaptureAny,
}

// preferredFormats is tried in order when configuring the device; the first
// format that still yields a readable frame wins.
var preferredFormats = []string{"MJPG", "YUY2", "I420"}

// GoCVOpener opens a local camera through OpenCV's VideoCapture.
type GoCVOpener struct {
	cfg      config.CameraConfig
	backends []gocv.VideoCaptureAPI
	logger   *zap.Logger
}

// NewGoCVOpener creates an opener for the configured camera index.
func NewGoCVOpener(cfg config.CameraConfig) *GoCVOpener {
	return &GoCVOpener{
		cfg:      cfg,
		backends: defaultBackends,
		logger:   zap.L().Named("camera"),
	}
}

// Open tries each backend in order until one produces a readable device.
// If every backend fails, the returned error wraps ErrResourceUnavailable.
func (o *GoCVOpener) Open() (Device, error) {
	var lastErr error
	for _, backend := range o.backends {
		vc, err := gocv.OpenVideoCaptureWithAPI(o.cfg.Index, backend)
		if err != nil {
			lastErr = err
			o.logger.Debug("backend open failed",
				zap.Int("backend", int(backend)),
				zap.Error(err))
			continue
		}
		if !vc.IsOpened() {
			vc.Close()
			lastErr = fmt.Errorf("backend %d: device not opened", backend)
			continue
		}

		o.configure(vc)

		// A test read validates the backend before committing to it.
		probe := gocv.NewMat()
		ok := vc.Read(&probe)
		empty := probe.Empty()
		probe.Close()
		if !ok || empty {
			vc.Close()
			lastErr = fmt.Errorf("backend %d: test read failed", backend)
			continue
		}

		o.logger.Info("camera acquired",
			zap.Int("index", o.cfg.Index),
			zap.Int("backend", int(backend)))
		return &gocvDevice{vc: vc}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no capture backends configured")
	}
	return nil, fmt.Errorf("%w: index %d: %v", ErrResourceUnavailable, o.cfg.Index, lastErr)
}

// configure applies resolution, cadence, and format settings. Failures are
// tolerated: drivers are free to ignore properties they do not support.
func (o *GoCVOpener) configure(vc *gocv.VideoCapture) {
	vc.Set(gocv.VideoCaptureFrameWidth, float64(o.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(o.cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(o.cfg.TargetFPS))
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	for _, format := range preferredFormats {
		vc.Set(gocv.VideoCaptureFOURCC, vc.ToCodec(format))

		probe := gocv.NewMat()
		ok := vc.Read(&probe)
		empty := probe.Empty()
		probe.Close()
		if ok && !empty {
			o.logger.Debug("camera format selected", zap.String("fourcc", format))
			return
		}
	}
}

type gocvDevice struct {
	vc  *gocv.VideoCapture
	seq atomic.Uint64
}

func (d *gocvDevice) ReadFrame() (*Frame, error) {
	mat := gocv.NewMat()
	defer mat.Close()

	if ok := d.vc.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("frame read failed")
	}

	bgr := mat
	if mat.Channels() != FrameChannels {
		converted := gocv.NewMat()
		defer converted.Close()
		code := gocv.ColorGrayToBGR
		if mat.Channels() == 4 {
			code = gocv.ColorBGRAToBGR
		}
		gocv.CvtColor(mat, &converted, code)
		bgr = converted
	}

	// ToBytes copies out of Mat memory, so the frame owns its pixels.
	return NewFrame(bgr.ToBytes(), bgr.Cols(), bgr.Rows(), d.seq.Add(1)), nil
}

func (d *gocvDevice) Close() error {
	return d.vc.Close()
}
