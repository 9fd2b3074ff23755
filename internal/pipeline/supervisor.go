// Package pipeline wires the capture and captioning loops around the two
// handoff slots and supervises their shared lifecycle.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/buffer"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/caption"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/captioning"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/capture"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/config"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/enhance"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/imgconv"
)

// statsEvery is the cadence of the periodic counters log line.
const statsEvery = 30 * time.Second

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	FramesCaptured    uint64
	FramesPublished   uint64
	FramesDropped     uint64
	ReadFailures      uint64
	Reacquires        uint64
	CaptionsPublished uint64
	CaptionsDropped   uint64
	InferenceFailures uint64
	IdleCycles        uint64
	CaptionInterval   time.Duration
}

// Supervisor owns the two loops and the slots between them. Consumers pull
// results through LatestFrame and LatestCaption; the supervisor itself
// never blocks on either loop.
type Supervisor struct {
	cfg       *config.Config
	frames    *buffer.Slot[*camera.Frame]
	captions  *buffer.Slot[caption.Result]
	capture   *capture.Loop
	caption   *captioning.Loop
	logger    *zap.Logger
	sessionID string

	running   atomic.Bool
	statsStop chan struct{}
}

// New builds a supervisor from validated configuration and the three
// pluggable collaborators. Slot allocation cannot fail on a validated
// config.
func New(cfg *config.Config, opener camera.Opener, enhancer enhance.Enhancer, captioner caption.Captioner) (*Supervisor, error) {
	frames, err := buffer.New[*camera.Frame](cfg.Camera.FrameBufferSize)
	if err != nil {
		return nil, fmt.Errorf("frame slot: %w", err)
	}
	captions, err := buffer.New[caption.Result](cfg.Captioning.CaptionBufferSize)
	if err != nil {
		return nil, fmt.Errorf("caption slot: %w", err)
	}

	return &Supervisor{
		cfg:      cfg,
		frames:   frames,
		captions: captions,
		capture:  capture.NewLoop(cfg.Camera, opener, enhancer, frames),
		caption:  captioning.NewLoop(cfg.Captioning, captioner, frames, captions),
		logger:   zap.L().Named("pipeline"),
	}, nil
}

// Start launches the capture loop, then the captioning loop. If the camera
// cannot be acquired the error is returned as-is (it wraps
// camera.ErrResourceUnavailable) and the captioning loop is never started.
// Idempotent: a second Start while running is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	s.sessionID = uuid.NewString()
	logger := s.logger.With(zap.String("session_id", s.sessionID))

	if err := s.capture.Start(ctx); err != nil {
		s.running.Store(false)
		return err
	}
	if err := s.caption.Start(ctx); err != nil {
		// Cannot happen on a freshly built loop; fail closed anyway.
		stopErr := s.capture.Stop()
		s.running.Store(false)
		return multierr.Append(fmt.Errorf("captioning start: %w", err), stopErr)
	}

	s.statsStop = make(chan struct{})
	go s.logStats(s.statsStop)

	logger.Info("pipeline started",
		zap.Int("frame_buffer", s.frames.Capacity()),
		zap.Int("caption_buffer", s.captions.Capacity()))
	return nil
}

// Stop halts both loops, drains both slots, and returns any grace-period
// violations. Idempotent: stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	close(s.statsStop)

	// Captioning first so it stops pulling while capture winds down; the
	// capture loop releases the camera as it exits.
	err := multierr.Append(s.caption.Stop(), s.capture.Stop())

	s.frames.Drain()
	s.captions.Drain()

	s.logger.Info("pipeline stopped", zap.String("session_id", s.sessionID))
	return err
}

// Running reports whether Start has succeeded and Stop has not been called.
func (s *Supervisor) Running() bool {
	return s.running.Load()
}

// Halted reports whether the capture loop terminated itself after losing
// the camera for good.
func (s *Supervisor) Halted() bool {
	return s.capture.Halted()
}

// Err returns the capture halt cause, if any.
func (s *Supervisor) Err() error {
	return s.capture.Err()
}

// SessionID identifies the current run. Empty before the first Start.
func (s *Supervisor) SessionID() string {
	return s.sessionID
}

// LatestFrame returns the newest unconsumed frame, discarding anything
// older, or reports that nothing new is available.
func (s *Supervisor) LatestFrame() (*camera.Frame, bool) {
	return s.frames.TakeLatest()
}

// LatestCaption returns the newest unconsumed caption, discarding anything
// older, or reports that nothing new is available.
func (s *Supervisor) LatestCaption() (caption.Result, bool) {
	return s.captions.TakeLatest()
}

// SaveSnapshot writes the newest unconsumed frame to dir as a JPEG named
// after the session and frame sequence, returning the written path.
func (s *Supervisor) SaveSnapshot(dir string) (string, error) {
	frame, ok := s.frames.TakeLatest()
	if !ok {
		return "", fmt.Errorf("no frame available to save")
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%06d.jpg", s.sessionID, frame.Seq))
	if err := imgconv.SaveJPEG(frame, path); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Info("snapshot saved", zap.String("path", path), zap.Uint64("seq", frame.Seq))
	return path, nil
}

// Stats snapshots the counters of both loops and slots.
func (s *Supervisor) Stats() Stats {
	cm := s.capture.Stats()
	cc := s.caption.Stats()
	return Stats{
		FramesCaptured:    cm.FramesCaptured.Load(),
		FramesPublished:   cm.FramesPub.Load(),
		FramesDropped:     s.frames.Dropped(),
		ReadFailures:      cm.ReadFailures.Load(),
		Reacquires:        cm.Reacquires.Load(),
		CaptionsPublished: cc.CaptionsPublished.Load(),
		CaptionsDropped:   s.captions.Dropped(),
		InferenceFailures: cc.InferenceFailures.Load(),
		IdleCycles:        cc.IdleCycles.Load(),
		CaptionInterval:   s.caption.Interval(),
	}
}

func (s *Supervisor) logStats(stop <-chan struct{}) {
	ticker := time.NewTicker(statsEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st := s.Stats()
			s.logger.Info("pipeline stats",
				zap.Uint64("frames_captured", st.FramesCaptured),
				zap.Uint64("frames_dropped", st.FramesDropped),
				zap.Uint64("captions_published", st.CaptionsPublished),
				zap.Uint64("captions_dropped", st.CaptionsDropped),
				zap.Uint64("inference_failures", st.InferenceFailures),
				zap.Uint64("read_failures", st.ReadFailures),
				zap.Duration("caption_interval", st.CaptionInterval))
		}
	}
}
