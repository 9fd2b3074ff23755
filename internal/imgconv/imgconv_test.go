package imgconv

import (
	"testing"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
)

func TestFrameToMatRejectsBadFrames(t *testing.T) {
	short := camera.NewFrame(make([]byte, 5), 2, 2, 1) // needs 2*2*3 bytes

	tests := []struct {
		name  string
		frame *camera.Frame
	}{
		{name: "nil frame", frame: nil},
		{name: "empty pixels", frame: camera.NewFrame(nil, 2, 2, 1)},
		{name: "length mismatch", frame: short},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mat, err := FrameToMat(tt.frame)
			if err == nil {
				mat.Close()
				t.Fatal("expected an error")
			}
		})
	}
}
