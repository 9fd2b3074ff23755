// Package captioning runs the background loop that consumes frames,
// invokes the captioning collaborator, and adapts its own cadence to the
// observed confidence through the feedback controller.
package captioning

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/buffer"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/caption"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/config"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/control"
)

// State is the lifecycle position of the loop.
type State int32

const (
	Stopped State = iota
	Running
)

const stopGrace = 5 * time.Second

// Metrics tracks captioning throughput and failure containment.
type Metrics struct {
	CaptionsPublished atomic.Uint64
	InferenceFailures atomic.Uint64
	IdleCycles        atomic.Uint64
}

// Loop drains at most one frame per cycle, captions it, publishes the
// result, and feeds the confidence error back into the controller. An
// empty frame slot is an idle cycle, not an error; a failed inference call
// publishes nothing and keeps the previous cadence.
type Loop struct {
	cfg       config.CaptioningConfig
	captioner caption.Captioner
	frames    *buffer.Slot[*camera.Frame]
	captions  *buffer.Slot[caption.Result]
	pid       *control.PID
	logger    *zap.Logger

	state    atomic.Int32
	interval atomic.Int64 // nanoseconds, for observation only

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	stopped bool

	metrics Metrics
}

// NewLoop wires a captioning loop to its collaborators. The controller is
// owned exclusively by this loop and never accessed concurrently.
func NewLoop(cfg config.CaptioningConfig, captioner caption.Captioner, frames *buffer.Slot[*camera.Frame], captions *buffer.Slot[caption.Result]) *Loop {
	l := &Loop{
		cfg:       cfg,
		captioner: captioner,
		frames:    frames,
		captions:  captions,
		pid:       control.New(cfg.KP, cfg.KI, cfg.KD),
		logger:    zap.L().Named("captioning"),
	}
	l.interval.Store(int64(cfg.BaseInterval))
	return l
}

// Start launches the captioning goroutine.
func (l *Loop) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return nil // already running
	}

	l.pid.Reset()
	l.interval.Store(int64(l.cfg.BaseInterval))

	l.mu.Lock()
	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})
	l.stopped = false
	l.mu.Unlock()

	go l.run(ctx, l.stopCh)

	l.logger.Info("captioning loop started",
		zap.Duration("base_interval", l.cfg.BaseInterval),
		zap.Float64("target_confidence", l.cfg.TargetConfidence))
	return nil
}

// Stop signals the loop to halt and waits for it to exit. Idempotent. A
// caption call already in flight is allowed to finish; the halt flag is
// observed at the next cycle boundary.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.stopCh == nil {
		l.mu.Unlock()
		return nil
	}
	if !l.stopped {
		l.stopped = true
		close(l.stopCh)
	}
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-time.After(stopGrace):
		return fmt.Errorf("captioning loop did not halt within %v", stopGrace)
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Interval returns the current adaptive cadence.
func (l *Loop) Interval() time.Duration {
	return time.Duration(l.interval.Load())
}

// Stats exposes the captioning counters.
func (l *Loop) Stats() *Metrics {
	return &l.metrics
}

func (l *Loop) run(ctx context.Context, stopCh <-chan struct{}) {
	defer close(l.done)
	defer l.state.Store(int32(Stopped))

	interval := l.cfg.BaseInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			l.logger.Info("captioning loop halting")
			return
		case <-ctx.Done():
			l.logger.Info("captioning loop stopping: context cancelled")
			return
		case <-timer.C:
		}

		interval = l.cycle(ctx, interval)
		l.interval.Store(int64(interval))
		timer.Reset(interval)
	}
}

// cycle processes at most one frame and returns the next cadence.
func (l *Loop) cycle(ctx context.Context, interval time.Duration) time.Duration {
	frame, ok := l.frames.Take()
	if !ok {
		// Nothing captured yet: idle, not a failure.
		l.metrics.IdleCycles.Add(1)
		return interval
	}

	callCtx := ctx
	if l.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.cfg.RequestTimeout)
		defer cancel()
	}

	result, err := l.captioner.Caption(callCtx, frame)
	if err != nil {
		// Publishing nothing beats publishing a fabricated zero-confidence
		// caption. The previous cadence carries over.
		l.metrics.InferenceFailures.Add(1)
		l.logger.Warn("caption cycle skipped",
			zap.Uint64("frame_seq", frame.Seq),
			zap.Error(err))
		return interval
	}

	l.captions.Put(result)
	l.metrics.CaptionsPublished.Add(1)

	// Low confidence produces a positive error and a positive adjustment,
	// which tightens the cadence; confidence above target relaxes it.
	confErr := l.cfg.TargetConfidence - result.Confidence
	adjust := time.Duration(l.pid.Update(confErr) * float64(time.Second))
	next := control.Clamp(interval-adjust, l.cfg.MinInterval, l.cfg.MaxInterval)

	l.logger.Debug("caption published",
		zap.Uint64("frame_seq", frame.Seq),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("next_interval", next))
	return next
}
