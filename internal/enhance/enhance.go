// Package enhance applies the pluggable image enhancement transform the
// capture loop runs on every raw frame.
package enhance

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/camera"
	"github.com/akprettyboi/Real-Time-Image-Captioning-App/internal/imgconv"
)

// Enhancer is a pure, deterministic frame transform. Implementations must
// not mutate the input frame.
type Enhancer interface {
	Enhance(*camera.Frame) (*camera.Frame, error)
}

// Nop returns the input frame unchanged.
type Nop struct{}

func (Nop) Enhance(f *camera.Frame) (*camera.Frame, error) { return f, nil }

// profile bundles the tunables that differ between the two filter chains.
type profile struct {
	contrast   float32
	brightness float32
	saturation float32 // 0 disables the saturation pass
	kernel     [][]float32
	denoiseH   float32
}

var profiles = map[string]profile{
	"standard": {
		contrast:   1.3,
		brightness: 5,
		kernel: [][]float32{
			{-1, -1, -1},
			{-1, 9, -1},
			{-1, -1, -1},
		},
		denoiseH: 5,
	},
	"vivid": {
		contrast:   1.2,
		brightness: 0.1,
		saturation: 1.1,
		kernel: [][]float32{
			{-0.125, -0.125, -0.125, -0.125, -0.125},
			{-0.125, 0.25, 0.25, 0.25, -0.125},
			{-0.125, 0.25, 1.0, 0.25, -0.125},
			{-0.125, 0.25, 0.25, 0.25, -0.125},
			{-0.125, -0.125, -0.125, -0.125, -0.125},
		},
		denoiseH: 3,
	},
}

// GoCV runs a brightness/contrast, sharpen, denoise chain through OpenCV.
type GoCV struct {
	prof   profile
	kernel gocv.Mat
}

// NewGoCV builds the enhancer for the named profile ("standard", "vivid",
// or "none").
func NewGoCV(name string) (Enhancer, error) {
	if name == "none" {
		return Nop{}, nil
	}
	prof, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown enhancement profile %q", name)
	}

	size := len(prof.kernel)
	kernel := gocv.NewMatWithSize(size, size, gocv.MatTypeCV32F)
	for row, vals := range prof.kernel {
		for col, v := range vals {
			kernel.SetFloatAt(row, col, v)
		}
	}

	return &GoCV{prof: prof, kernel: kernel}, nil
}

// Enhance returns a new frame with the filter chain applied. The input is
// left untouched.
func (e *GoCV) Enhance(f *camera.Frame) (*camera.Frame, error) {
	src, err := imgconv.FrameToMat(f)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// Brightness and contrast.
	adjusted := gocv.NewMat()
	defer adjusted.Close()
	src.ConvertToWithParams(&adjusted, gocv.MatTypeCV8UC3, e.prof.contrast, e.prof.brightness)

	// Sharpen.
	sharpened := gocv.NewMat()
	defer sharpened.Close()
	gocv.Filter2D(adjusted, &sharpened, gocv.MatTypeCV8UC3, e.kernel, image.Pt(-1, -1), 0, gocv.BorderDefault)

	// Noise reduction.
	denoised := gocv.NewMat()
	defer denoised.Close()
	gocv.FastNlMeansDenoisingColoredWithParams(sharpened, &denoised, e.prof.denoiseH, e.prof.denoiseH, 7, 21)

	out := denoised
	if e.prof.saturation > 0 {
		boosted := gocv.NewMat()
		defer boosted.Close()
		e.boostSaturation(denoised, &boosted)
		out = boosted
	}

	result, err := imgconv.MatToFrame(out, f.Seq)
	if err != nil {
		return nil, err
	}
	result.Timestamp = f.Timestamp
	return result, nil
}

func (e *GoCV) boostSaturation(src gocv.Mat, dst *gocv.Mat) {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV)

	channels := gocv.Split(hsv)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()

	channels[1].MultiplyFloat(e.prof.saturation)

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)
	gocv.CvtColor(merged, dst, gocv.ColorHSVToBGR)
}

// Close releases the kernel Mat.
func (e *GoCV) Close() error {
	return e.kernel.Close()
}
