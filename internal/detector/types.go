package detector

import (
	"image"
	"math"
	"time"
)

// Box is a detection box in normalised [0,1] model space.
//
// Boxes come straight from the model: Y1 >= Y0 and X1 >= X0 are not
// enforced.
type Box struct {
	Y0, X0 float32 // top-left
	Y1, X1 float32 // bottom-right
}

// Width returns box width
func (b Box) Width() float32 {
	return b.X1 - b.X0
}

// Height returns box height
func (b Box) Height() float32 {
	return b.Y1 - b.Y0
}

// Rect is a box in viewport units
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// Scale maps the box onto a viewport of the given size
func (b Box) Scale(width, height float64) Rect {
	return Rect{
		X:      float64(b.X0) * width,
		Y:      float64(b.Y0) * height,
		Width:  float64(b.Width()) * width,
		Height: float64(b.Height()) * height,
	}
}

// Image rounds r to an image.Rectangle for drawing
func (r Rect) Image() image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	return image.Rect(x0, y0, x0+int(math.Round(r.Width)), y0+int(math.Round(r.Height)))
}

// Face is a detection that passed the confidence threshold
type Face struct {
	Confidence float32
	Box        Box
	Class      int
}

// Prediction is the result of one processed frame
type Prediction struct {
	FrameSeq  uint64
	Timestamp time.Time
	// InferenceLatency covers the model invocation only
	InferenceLatency time.Duration
	// Faces are in model output order
	Faces []Face
}

// LatencyMs returns the inference latency in milliseconds
func (p *Prediction) LatencyMs() float64 {
	return float64(p.InferenceLatency) / float64(time.Millisecond)
}
