// Package imgconv converts between pipeline frames and OpenCV Mats, and
// handles JPEG encoding for the captioner payload and frame snapshots.
package imgconv

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
)

// jpegQuality matches the snapshot quality of the capture stack.
const jpegQuality = 95

// FrameToMat wraps frame pixels in a BGR Mat. The Mat copies the data, so
// the caller must Close it and the frame stays immutable.
func FrameToMat(f *camera.Frame) (gocv.Mat, error) {
	// Error paths return the zero Mat, which holds no C memory and needs
	// no Close.
	if f == nil || len(f.Pix) == 0 {
		return gocv.Mat{}, fmt.Errorf("empty frame")
	}
	if len(f.Pix) != f.Bytes() {
		return gocv.Mat{}, fmt.Errorf("frame pixel length %d does not match %dx%dx%d",
			len(f.Pix), f.Width, f.Height, camera.FrameChannels)
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pix)
}

// MatToFrame copies a BGR Mat into an owned frame carrying the given
// sequence number.
func MatToFrame(mat gocv.Mat, seq uint64) (*camera.Frame, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("empty mat")
	}
	if mat.Channels() != camera.FrameChannels {
		return nil, fmt.Errorf("expected %d channels, got %d", camera.FrameChannels, mat.Channels())
	}
	return camera.NewFrame(mat.ToBytes(), mat.Cols(), mat.Rows(), seq), nil
}

// EncodeJPEG renders a frame as a JPEG byte payload.
func EncodeJPEG(f *camera.Frame) ([]byte, error) {
	mat, err := FrameToMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, jpegQuality})
	if err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}

// SaveJPEG writes a frame to disk as a high-quality JPEG.
func SaveJPEG(f *camera.Frame, path string) error {
	mat, err := FrameToMat(f)
	if err != nil {
		return err
	}
	defer mat.Close()

	if ok := gocv.IMWriteWithParams(path, mat, []int{gocv.IMWriteJpegQuality, jpegQuality}); !ok {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}
