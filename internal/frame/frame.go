package frame

import (
	"fmt"
	"time"
)

// PixelFormat describes the byte layout of a pixel
type PixelFormat int

const (
	// FormatBGRA is 4 bytes per pixel in B, G, R, A order
	FormatBGRA PixelFormat = iota
)

// Channels returns bytes per pixel
func (p PixelFormat) Channels() int {
	switch p {
	case FormatBGRA:
		return 4
	default:
		return 0
	}
}

func (p PixelFormat) String() string {
	switch p {
	case FormatBGRA:
		return "BGRA"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(p))
	}
}

// Frame is one captured image.
//
// Data MUST NOT be modified once the frame has been published to a Mailbox;
// it is shared by reference with every reader.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	// Stride is the number of bytes per row, at least Width*Channels.
	Stride int
	Format PixelFormat

	// Seq is assigned by the source, monotonically increasing from 1.
	Seq       uint64
	Timestamp time.Time
}

// NewBGRA wraps a tightly packed BGRA buffer
func NewBGRA(data []byte, width, height int) *Frame {
	return &Frame{
		Data:   data,
		Width:  width,
		Height: height,
		Stride: width * 4,
		Format: FormatBGRA,
	}
}

// Validate checks the declared geometry against the buffer
func (f *Frame) Validate() error {
	ch := f.Format.Channels()
	if ch == 0 {
		return fmt.Errorf("unsupported pixel format %s", f.Format)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if f.Stride < f.Width*ch {
		return fmt.Errorf("stride %d shorter than row of %d bytes", f.Stride, f.Width*ch)
	}
	if need := f.Stride*(f.Height-1) + f.Width*ch; len(f.Data) < need {
		return fmt.Errorf("buffer has %d bytes, %dx%d with stride %d needs %d",
			len(f.Data), f.Width, f.Height, f.Stride, need)
	}
	return nil
}

// Packed reports whether rows are contiguous with no padding
func (f *Frame) Packed() bool {
	return f.Stride == f.Width*f.Format.Channels()
}

// Pixels returns the pixel bytes without row padding. For a packed frame
// it is a sub-slice of Data, otherwise a copy.
func (f *Frame) Pixels() []byte {
	row := f.Width * f.Format.Channels()
	if f.Packed() {
		return f.Data[:row*f.Height]
	}
	out := make([]byte, row*f.Height)
	for y := 0; y < f.Height; y++ {
		copy(out[y*row:(y+1)*row], f.Data[y*f.Stride:y*f.Stride+row])
	}
	return out
}
