// Package detector runs face detection on single frames.
package detector

import (
	"fmt"
	"sync"
	"time"

	"github.com/dudu/facedetect/internal/frame"
	"github.com/dudu/facedetect/internal/inference"
	"github.com/dudu/facedetect/internal/preprocess"
)

// Timing holds per-stage timing of one Detect call
type Timing struct {
	Preprocess time.Duration
	Inference  time.Duration
	Decode     time.Duration
	Total      time.Duration
}

// Detector preprocesses a frame, invokes the model and decodes its outputs.
// Calls are serialised: the engine has a single detection slot.
type Detector struct {
	mu         sync.Mutex
	engine     inference.Engine
	pre        *preprocess.Preprocessor
	decoder    Decoder
	lastTiming Timing
}

// New creates a detector over a loaded engine
func New(engine inference.Engine, resizer preprocess.Resizer, threshold float32) (*Detector, error) {
	shape := engine.InputShape()
	if shape.Channels != preprocess.Channels {
		return nil, fmt.Errorf("model input %s: want %d channels", shape, preprocess.Channels)
	}

	pre, err := preprocess.New(shape.Width, shape.Height, resizer)
	if err != nil {
		return nil, fmt.Errorf("failed to create preprocessor: %w", err)
	}

	return &Detector{
		engine:  engine,
		pre:     pre,
		decoder: NewDecoder(threshold),
	}, nil
}

// Detect finds faces in a frame.
//
// An error means no prediction for this frame; the detector stays usable.
func (d *Detector) Detect(f *frame.Frame) (*Prediction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	totalStart := time.Now()
	var timing Timing

	input, err := d.engine.InputTensor(0)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}

	preStart := time.Now()
	if err := d.pre.Process(f, input); err != nil {
		return nil, fmt.Errorf("preprocess failed: %w", err)
	}
	timing.Preprocess = time.Since(preStart)

	inferStart := time.Now()
	if err := d.engine.Invoke(); err != nil {
		return nil, err
	}
	timing.Inference = time.Since(inferStart)

	decodeStart := time.Now()
	boxes, classes, scores, count, err := inference.Outputs(d.engine)
	if err != nil {
		return nil, fmt.Errorf("read outputs: %w", err)
	}
	faces := d.decoder.Decode(boxes, classes, scores, count)
	timing.Decode = time.Since(decodeStart)

	timing.Total = time.Since(totalStart)
	d.lastTiming = timing

	return &Prediction{
		FrameSeq:         f.Seq,
		Timestamp:        f.Timestamp,
		InferenceLatency: timing.Inference,
		Faces:            faces,
	}, nil
}

// LastTiming returns timing from the last successful Detect call
func (d *Detector) LastTiming() Timing {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTiming
}

// Threshold returns the confidence threshold
func (d *Detector) Threshold() float32 {
	return d.decoder.Threshold
}

// Close releases the engine
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine.Close()
}
