// Package inference defines the tensor-level contract of a loaded detection
// model. Backends live in the tflite and onnx subpackages.
package inference

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvoke is wrapped by backends when a model invocation fails
	ErrInvoke = errors.New("invoke failed")
	// ErrTensorIndex is returned for an out-of-range tensor index
	ErrTensorIndex = errors.New("tensor index out of range")
)

// Output tensor indices of an SSD-style detection model
const (
	OutputBoxes   = 0 // [N,4] y0,x0,y1,x1 normalised
	OutputClasses = 1 // [N]
	OutputScores  = 2 // [N]
	OutputCount   = 3 // [1] number of valid rows
	NumOutputs    = 4
)

// Shape is the declared input shape of a model
type Shape struct {
	Width    int
	Height   int
	Channels int
}

// Size returns the element count of the shape
func (s Shape) Size() int {
	return s.Width * s.Height * s.Channels
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Channels)
}

// Engine is a loaded model.
//
// The engine owns all tensor storage. Buffers returned by InputTensor and
// OutputTensor are only valid until the next Invoke or Close. Invoke is
// synchronous; an Engine must not be invoked concurrently.
type Engine interface {
	// InputShape returns the fixed input shape declared at load time
	InputShape() Shape
	// InputTensor returns the writable uint8 buffer of input index
	InputTensor(index int) ([]byte, error)
	// Invoke runs the model on the current input tensors
	Invoke() error
	// OutputTensor returns the float32 buffer of output index
	OutputTensor(index int) ([]float32, error)
	// Close releases the model
	Close() error
}

// Outputs reads the four detection outputs of e
func Outputs(e Engine) (boxes, classes, scores []float32, count int, err error) {
	var out [NumOutputs][]float32
	for i := range out {
		if out[i], err = e.OutputTensor(i); err != nil {
			return nil, nil, nil, 0, fmt.Errorf("output %d: %w", i, err)
		}
	}
	if len(out[OutputCount]) == 0 {
		return nil, nil, nil, 0, fmt.Errorf("output %d: empty count tensor", OutputCount)
	}
	return out[OutputBoxes], out[OutputClasses], out[OutputScores], countOf(out[OutputCount][0]), nil
}

// countOf converts the count tensor value; NaN, Inf and negatives are 0
func countOf(v float32) int {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

// TensorInfo describes one model tensor
type TensorInfo struct {
	Name  string
	Shape []int64
	Type  string
}

// ModelInfo describes a model file
type ModelInfo struct {
	Path     string
	Inputs   []TensorInfo
	Outputs  []TensorInfo
	Metadata map[string]string
}
