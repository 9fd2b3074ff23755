// Package caption defines the captioning collaborator: an opaque, possibly
// slow, possibly failing function from a frame to (text, confidence).
package caption

import (
	"context"
	"fmt"
	"time"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
)

// Result is an immutable caption: the generated text and the model's
// confidence in [0,1].
type Result struct {
	Text       string
	Confidence float64
	Seq        uint64
	At         time.Time
}

// Captioner generates a caption for a frame. Calls may be slow; the caller
// bounds them with the context. A failed call is an InferenceError and the
// cycle that made it publishes nothing.
type Captioner interface {
	Caption(ctx context.Context, f *camera.Frame) (Result, error)
}

// Func adapts a plain function to the Captioner interface.
type Func func(ctx context.Context, f *camera.Frame) (Result, error)

func (fn Func) Caption(ctx context.Context, f *camera.Frame) (Result, error) {
	return fn(ctx, f)
}

// InferenceError marks a single failed captioning call. It is contained in
// the captioning loop and never crashes the pipeline.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("caption inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
