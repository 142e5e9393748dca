package pipeline

import (
	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/frame"
)

// FaceDetector interface for single-frame face detection
type FaceDetector interface {
	Detect(f *frame.Frame) (*detector.Prediction, error)
	LastTiming() detector.Timing
}

// Renderer receives each prediction. It is called on the consumption
// goroutine and must hand off to its own context rather than draw there.
type Renderer interface {
	OnPrediction(p *detector.Prediction)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(p *detector.Prediction)

// OnPrediction implements Renderer
func (fn RendererFunc) OnPrediction(p *detector.Prediction) { fn(p) }

// Renderers fans a prediction out to several renderers in order
type Renderers []Renderer

// OnPrediction implements Renderer
func (rs Renderers) OnPrediction(p *detector.Prediction) {
	for _, r := range rs {
		r.OnPrediction(p)
	}
}
