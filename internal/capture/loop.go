// Package capture runs the background loop that owns the camera: paced
// frame acquisition, enhancement, and publication into the frame slot.
package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/buffer"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/config"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/enhance"
)

// State is the lifecycle position of the loop.
type State int32

const (
	Stopped State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// stopGrace bounds how long Stop waits for the loop to observe the halt
// flag. Exceeding it is an integration error, not something to swallow.
const stopGrace = 5 * time.Second

// Metrics tracks capture throughput.
type Metrics struct {
	FramesCaptured atomic.Uint64
	FramesPub      atomic.Uint64
	ReadFailures   atomic.Uint64
	Reacquires     atomic.Uint64
}

// Loop owns the camera handle exclusively. It acquires the device on
// Start, reads frames on a fixed cadence, enhances them, and publishes
// into the frame slot. Sustained read failures trigger a bounded
// release-and-reacquire; if that fails the loop halts itself and exposes
// the halted status.
type Loop struct {
	cfg      config.CameraConfig
	opener   camera.Opener
	enhancer enhance.Enhancer
	frames   *buffer.Slot[*camera.Frame]
	logger   *zap.Logger

	state atomic.Int32

	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
	stopped bool
	haltErr error

	metrics Metrics
}

// NewLoop wires a capture loop to its collaborators. The slot is shared
// with the captioning loop; nothing else is.
func NewLoop(cfg config.CameraConfig, opener camera.Opener, enhancer enhance.Enhancer, frames *buffer.Slot[*camera.Frame]) *Loop {
	return &Loop{
		cfg:      cfg,
		opener:   opener,
		enhancer: enhancer,
		frames:   frames,
		logger:   zap.L().Named("capture"),
	}
}

// Start acquires the camera and launches the capture goroutine. If
// acquisition fails after all backend attempts the loop never enters
// Running and the error wraps camera.ErrResourceUnavailable.
func (l *Loop) Start(ctx context.Context) error {
	if !l.transition(Stopped, Starting) {
		return nil // already running
	}

	device, err := l.opener.Open()
	if err != nil {
		l.state.Store(int32(Stopped))
		return fmt.Errorf("capture start: %w", err)
	}

	l.mu.Lock()
	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})
	l.stopped = false
	l.haltErr = nil
	l.mu.Unlock()

	l.state.Store(int32(Running))
	go l.run(ctx, device, l.stopCh)

	l.logger.Info("capture loop started",
		zap.Int("target_fps", l.cfg.TargetFPS),
		zap.Int("frame_buffer", l.frames.Capacity()))
	return nil
}

// Stop signals the loop to halt and waits for it to exit. It is
// idempotent; the camera is released exactly once, by the loop goroutine.
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
		return fmt.Errorf("capture loop did not halt within %v", stopGrace)
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Halted reports whether the loop terminated itself after failing to
// reacquire the camera.
func (l *Loop) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.haltErr != nil
}

// Err returns the halt cause, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.haltErr
}

// Stats exposes the capture counters.
func (l *Loop) Stats() *Metrics {
	return &l.metrics
}

func (l *Loop) run(ctx context.Context, device camera.Device, stopCh <-chan struct{}) {
	defer close(l.done)
	defer l.state.Store(int32(Stopped))
	defer func() {
		if err := device.Close(); err != nil {
			l.logger.Warn("camera release failed", zap.Error(err))
		}
	}()

	framePeriod := time.Second / time.Duration(l.cfg.TargetFPS)
	consecutiveFailures := 0

	for {
		cycleStart := time.Now()

		select {
		case <-stopCh:
			l.logger.Info("capture loop halting")
			return
		case <-ctx.Done():
			l.logger.Info("capture loop stopping: context cancelled")
			return
		default:
		}

		frame, err := device.ReadFrame()
		if err != nil {
			consecutiveFailures++
			l.metrics.ReadFailures.Add(1)
			l.logger.Warn("frame read failed",
				zap.Int("consecutive", consecutiveFailures),
				zap.Int("threshold", l.cfg.MaxReadFailures),
				zap.Error(err))

			if consecutiveFailures >= l.cfg.MaxReadFailures {
				reacquired, rerr := l.reacquire(ctx, stopCh, device)
				if rerr != nil {
					select {
					case <-stopCh:
						// Stop interrupted the retries; not a halt.
						l.logger.Info("capture loop halting")
						return
					default:
					}
					l.halt(rerr)
					return
				}
				device = reacquired
				consecutiveFailures = 0
			}
			l.sleepRemainder(stopCh, cycleStart, framePeriod)
			continue
		}

		consecutiveFailures = 0
		l.metrics.FramesCaptured.Add(1)

		enhanced, err := l.enhancer.Enhance(frame)
		if err != nil {
			l.logger.Warn("enhancement failed, dropping frame",
				zap.Uint64("seq", frame.Seq),
				zap.Error(err))
			l.sleepRemainder(stopCh, cycleStart, framePeriod)
			continue
		}

		l.frames.Put(enhanced)
		l.metrics.FramesPub.Add(1)

		l.sleepRemainder(stopCh, cycleStart, framePeriod)
	}
}

// sleepRemainder paces the loop to the target frame rate without drifting
// when a cycle runs long.
func (l *Loop) sleepRemainder(stopCh <-chan struct{}, cycleStart time.Time, period time.Duration) {
	remainder := period - time.Since(cycleStart)
	if remainder <= 0 {
		return
	}
	select {
	case <-stopCh:
	case <-time.After(remainder):
	}
}

// reacquire releases the current device and retries acquisition with a
// fresh exponential backoff, bounded by MaxReacquireAttempts. A Stop
// issued mid-retry cancels the backoff instead of waiting it out.
func (l *Loop) reacquire(ctx context.Context, stopCh <-chan struct{}, old camera.Device) (camera.Device, error) {
	l.logger.Warn("too many consecutive read failures, reacquiring camera")
	if err := old.Close(); err != nil {
		l.logger.Warn("camera release before reacquire failed", zap.Error(err))
	}
	l.metrics.Reacquires.Add(1)

	retryCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-retryCtx.Done():
		}
	}()

	var device camera.Device
	op := func() error {
		d, err := l.opener.Open()
		if err != nil {
			return err
		}
		device = d
		return nil
	}

	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = 100 * time.Millisecond
	bo := backoff.WithContext(backoff.WithMaxRetries(ebo, uint64(l.cfg.MaxReacquireAttempts)), retryCtx)

	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("camera reacquisition failed: %w", err)
	}

	l.logger.Info("camera reacquired")
	return device, nil
}

func (l *Loop) halt(err error) {
	l.mu.Lock()
	l.haltErr = err
	l.mu.Unlock()
	l.logger.Error("capture halted", zap.Error(err))
}

func (l *Loop) transition(from, to State) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}
