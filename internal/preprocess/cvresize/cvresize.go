// Package cvresize resizes frames with OpenCV.
package cvresize

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/frame"
)

// Resizer implements preprocess.Resizer with gocv.Resize
type Resizer struct {
	interp gocv.InterpolationFlags
}

// New creates a bilinear OpenCV resizer
func New() *Resizer {
	return &Resizer{interp: gocv.InterpolationLinear}
}

// NewWithInterpolation creates a resizer with the given OpenCV kernel
func NewWithInterpolation(interp gocv.InterpolationFlags) *Resizer {
	return &Resizer{interp: interp}
}

// Resize scales a BGRA frame and returns packed BGRA bytes
func (r *Resizer) Resize(src *frame.Frame, dstW, dstH int) ([]byte, error) {
	if dstW <= 0 || dstH <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", dstW, dstH)
	}

	in, err := gocv.NewMatFromBytes(src.Height, src.Width, gocv.MatTypeCV8UC4, src.Pixels())
	if err != nil {
		return nil, fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer in.Close()

	out := gocv.NewMat()
	defer out.Close()

	gocv.Resize(in, &out, image.Pt(dstW, dstH), 0, 0, r.interp)
	if out.Empty() {
		return nil, fmt.Errorf("resize produced an empty image")
	}

	return out.ToBytes(), nil
}
