// Package preprocess turns camera frames into model input tensors.
package preprocess

import (
	"errors"
	"fmt"

	"github.com/dudu/facedetect/internal/frame"
)

var (
	// ErrFrameGeometry means a frame's declared size disagrees with its buffer
	ErrFrameGeometry = errors.New("frame geometry mismatch")
	// ErrTensorSize means the destination tensor is not width*height*3 bytes
	ErrTensorSize = errors.New("tensor size mismatch")
)

// Channels is the number of channels in the input tensor (RGB)
const Channels = 3

// Resizer scales a BGRA image. The returned buffer is tightly packed
// (stride dstW*4) and must not alias src.
type Resizer interface {
	Resize(src *frame.Frame, dstW, dstH int) ([]byte, error)
}

// Preprocessor resizes a frame to the model input size and packs it as RGB.
//
// It holds no per-frame state; Process is a pure function of its input and
// safe for concurrent use if the Resizer is.
type Preprocessor struct {
	width   int
	height  int
	resizer Resizer
}

// New creates a preprocessor for a width x height x 3 input tensor
func New(width, height int, resizer Resizer) (*Preprocessor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", width, height)
	}
	if resizer == nil {
		resizer = NewXDrawResizer(InterpolationBilinear)
	}
	return &Preprocessor{width: width, height: height, resizer: resizer}, nil
}

// Width returns the tensor width
func (p *Preprocessor) Width() int { return p.width }

// Height returns the tensor height
func (p *Preprocessor) Height() int { return p.height }

// TensorSize returns the exact tensor length in bytes
func (p *Preprocessor) TensorSize() int {
	return p.width * p.height * Channels
}

// Process writes the RGB tensor for f into dst.
//
// Bytes are copied verbatim (0-255), no normalisation. Output channel c
// (0=R, 1=G, 2=B) takes input channel 2-c of the resized BGRA pixel.
func (p *Preprocessor) Process(f *frame.Frame, dst []byte) error {
	if len(dst) != p.TensorSize() {
		return fmt.Errorf("%w: have %d bytes, want %d", ErrTensorSize, len(dst), p.TensorSize())
	}
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrFrameGeometry)
	}
	if f.Format != frame.FormatBGRA {
		return fmt.Errorf("%w: unsupported format %s", ErrFrameGeometry, f.Format)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrFrameGeometry, err)
	}

	src, stride := f.Data, f.Stride
	if f.Width != p.width || f.Height != p.height {
		resized, err := p.resizer.Resize(f, p.width, p.height)
		if err != nil {
			return fmt.Errorf("resize failed: %w", err)
		}
		if len(resized) != p.width*p.height*4 {
			return fmt.Errorf("%w: resizer returned %d bytes", ErrFrameGeometry, len(resized))
		}
		src, stride = resized, p.width*4
	}

	pack(dst, src, p.width, p.height, stride)
	return nil
}

// Tensor allocates and returns the RGB tensor for f
func (p *Preprocessor) Tensor(f *frame.Frame) ([]byte, error) {
	dst := make([]byte, p.TensorSize())
	if err := p.Process(f, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// pack copies BGRA rows into an RGB tensor
func pack(dst, src []byte, width, height, stride int) {
	for y := 0; y < height; y++ {
		in := src[y*stride : y*stride+width*4]
		out := dst[y*width*Channels : (y+1)*width*Channels]
		for x := 0; x < width; x++ {
			px := in[x*4 : x*4+4]
			o := out[x*Channels : x*Channels+Channels]
			for c := 0; c < Channels; c++ {
				o[c] = px[2-c]
			}
		}
	}
}
