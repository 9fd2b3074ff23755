// Package config holds the immutable pipeline configuration.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration. It is set at construction
// time and never mutated after the pipeline starts.
type Config struct {
	Camera     CameraConfig
	Enhance    EnhanceConfig
	Captioning CaptioningConfig
	Present    PresentConfig
}

// CameraConfig controls camera acquisition and the capture cadence.
type CameraConfig struct {
	Index     int
	Width     int
	Height    int
	TargetFPS int

	// FrameBufferSize is the capacity of the frame handoff slot.
	FrameBufferSize int

	// MaxReadFailures is the number of consecutive failed reads before the
	// capture loop releases and reacquires the camera.
	MaxReadFailures int

	// MaxReacquireAttempts bounds camera reacquisition retries. Exceeding it
	// halts the capture loop.
	MaxReacquireAttempts int
}

// EnhanceConfig selects the enhancement profile applied to raw frames.
type EnhanceConfig struct {
	// Profile is "standard", "vivid", or "none".
	Profile string
}

// CaptioningConfig controls the adaptive captioning cadence.
type CaptioningConfig struct {
	Endpoint          string
	CaptionBufferSize int

	TargetConfidence float64

	// BaseInterval is the captioning cadence before any adaptation.
	BaseInterval time.Duration
	MinInterval  time.Duration
	MaxInterval  time.Duration

	// PID gains for the confidence feedback loop.
	KP float64
	KI float64
	KD float64

	// RequestTimeout bounds a single captioner call.
	RequestTimeout time.Duration
}

// PresentConfig configures the optional presentation server.
type PresentConfig struct {
	Addr         string
	PollInterval time.Duration
}

// ValidationError reports an invalid configuration field. Construction
// fails fast; configuration errors never surface at runtime.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// NewDefaultConfig returns a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Camera: CameraConfig{
			Index:                0,
			Width:                1280,
			Height:               720,
			TargetFPS:            30,
			FrameBufferSize:      10,
			MaxReadFailures:      5,
			MaxReacquireAttempts: 3,
		},
		Enhance: EnhanceConfig{
			Profile: "standard",
		},
		Captioning: CaptioningConfig{
			Endpoint:          "http://localhost:8500/caption",
			CaptionBufferSize: 3,
			TargetConfidence:  0.8,
			BaseInterval:      2 * time.Second,
			MinInterval:       500 * time.Millisecond,
			MaxInterval:       10 * time.Second,
			KP:                0.6,
			KI:                0.2,
			KD:                0.3,
			RequestTimeout:    30 * time.Second,
		},
		Present: PresentConfig{
			Addr:         "localhost:8080",
			PollInterval: 100 * time.Millisecond,
		},
	}
}

// Validate checks the configuration and returns a ValidationError on the
// first invalid field.
func (c *Config) Validate() error {
	if c.Camera.TargetFPS <= 0 {
		return &ValidationError{Field: "camera.target_fps", Reason: "must be positive"}
	}
	if c.Camera.FrameBufferSize < 1 {
		return &ValidationError{Field: "camera.frame_buffer_size", Reason: "must be at least 1"}
	}
	if c.Camera.MaxReadFailures < 1 {
		return &ValidationError{Field: "camera.max_read_failures", Reason: "must be at least 1"}
	}
	if c.Camera.MaxReacquireAttempts < 0 {
		return &ValidationError{Field: "camera.max_reacquire_attempts", Reason: "must not be negative"}
	}
	if c.Captioning.CaptionBufferSize < 1 {
		return &ValidationError{Field: "captioning.caption_buffer_size", Reason: "must be at least 1"}
	}
	if c.Captioning.TargetConfidence < 0 || c.Captioning.TargetConfidence > 1 {
		return &ValidationError{Field: "captioning.target_confidence", Reason: "must be in [0,1]"}
	}
	if c.Captioning.MinInterval <= 0 {
		return &ValidationError{Field: "captioning.min_interval", Reason: "must be positive"}
	}
	if c.Captioning.MaxInterval < c.Captioning.MinInterval {
		return &ValidationError{Field: "captioning.max_interval", Reason: "must be >= min_interval"}
	}
	if c.Captioning.BaseInterval < c.Captioning.MinInterval || c.Captioning.BaseInterval > c.Captioning.MaxInterval {
		return &ValidationError{Field: "captioning.base_interval", Reason: "must be within [min_interval, max_interval]"}
	}
	if c.Captioning.KP < 0 || c.Captioning.KI < 0 || c.Captioning.KD < 0 {
		return &ValidationError{Field: "captioning.pid_gains", Reason: "must not be negative"}
	}
	switch c.Enhance.Profile {
	case "standard", "vivid", "none":
	default:
		return &ValidationError{Field: "enhance.profile", Reason: fmt.Sprintf("unknown profile %q", c.Enhance.Profile)}
	}
	return nil
}
