package camera

import "time"

// FrameChannels is the pixel layout every frame carries: 3-channel BGR.
const FrameChannels = 3

// Frame is an owned, immutable-after-creation pixel buffer. The pixel data
// lives on the Go heap, so an evicted frame is simply garbage collected.
// Ownership transfers into the handoff slot on publish; the capture loop
// never touches a frame again after putting it.
type Frame struct {
	Pix       []byte
	Width     int
	Height    int
	Seq       uint64
	Timestamp time.Time
}

// NewFrame wraps pixel data in a Frame. The caller must not retain pix.
func NewFrame(pix []byte, width, height int, seq uint64) *Frame {
	return &Frame{
		Pix:       pix,
		Width:     width,
		Height:    height,
		Seq:       seq,
		Timestamp: time.Now(),
	}
}

// Bytes returns the expected length of Pix for the frame dimensions.
func (f *Frame) Bytes() int {
	return f.Width * f.Height * FrameChannels
}
