package preprocess

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/dudu/facedetect/internal/frame"
)

// Interpolation selects the resampling kernel
type Interpolation string

const (
	InterpolationNearest  Interpolation = "nearest"
	InterpolationBilinear Interpolation = "bilinear"
	InterpolationBicubic  Interpolation = "bicubic"
)

// asRGBA views a BGRA frame as an image.RGBA without copying. Scaling treats
// the four channels independently so the byte order does not matter.
func asRGBA(f *frame.Frame) *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// packedPix returns img's pixels as a tight w*h*4 buffer
func packedPix(img image.Image, w, h int) []byte {
	if rgba, ok := img.(*image.RGBA); ok &&
		rgba.Rect == image.Rect(0, 0, w, h) && rgba.Stride == w*4 {
		return rgba.Pix
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst.Pix
}

// XDrawResizer resizes with golang.org/x/image/draw
type XDrawResizer struct {
	scaler draw.Scaler
}

// NewXDrawResizer creates a resizer; unknown kernels fall back to bilinear
func NewXDrawResizer(interp Interpolation) *XDrawResizer {
	var s draw.Scaler
	switch interp {
	case InterpolationNearest:
		s = draw.NearestNeighbor
	case InterpolationBicubic:
		s = draw.CatmullRom
	default:
		s = draw.BiLinear
	}
	return &XDrawResizer{scaler: s}
}

// Resize implements Resizer
func (r *XDrawResizer) Resize(src *frame.Frame, dstW, dstH int) ([]byte, error) {
	if dstW <= 0 || dstH <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", dstW, dstH)
	}
	in := asRGBA(src)
	out := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	r.scaler.Scale(out, out.Bounds(), in, in.Bounds(), draw.Src, nil)
	return out.Pix, nil
}

// NfntResizer resizes with github.com/nfnt/resize
type NfntResizer struct {
	interp resize.InterpolationFunction
}

// NewNfntResizer creates a resizer; unknown kernels fall back to bilinear
func NewNfntResizer(interp Interpolation) *NfntResizer {
	f := resize.Bilinear
	switch interp {
	case InterpolationNearest:
		f = resize.NearestNeighbor
	case InterpolationBicubic:
		f = resize.Bicubic
	}
	return &NfntResizer{interp: f}
}

// Resize implements Resizer
func (r *NfntResizer) Resize(src *frame.Frame, dstW, dstH int) ([]byte, error) {
	if dstW <= 0 || dstH <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", dstW, dstH)
	}
	out := resize.Resize(uint(dstW), uint(dstH), asRGBA(src), r.interp)
	return packedPix(out, dstW, dstH), nil
}
