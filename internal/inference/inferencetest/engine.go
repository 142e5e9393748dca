// Package inferencetest provides a scripted inference.Engine for tests.
package inferencetest

import (
	"fmt"
	"sync"

	"github.com/dudu/facedetect/internal/inference"
)

// Result is one scripted invocation outcome
type Result struct {
	Err     error
	Boxes   []float32
	Classes []float32
	Scores  []float32
	Count   int
}

// Engine replays Results in order; the last one repeats once exhausted
type Engine struct {
	mu      sync.Mutex
	shape   inference.Shape
	input   []byte
	results []Result
	calls   int
	current Result
	inputs  [][]byte
	closed  bool
}

// NewEngine creates a fake with the given input shape
func NewEngine(shape inference.Shape, results ...Result) *Engine {
	return &Engine{
		shape:   shape,
		input:   make([]byte, shape.Size()),
		results: results,
	}
}

// InputShape implements inference.Engine
func (e *Engine) InputShape() inference.Shape { return e.shape }

// InputTensor implements inference.Engine
func (e *Engine) InputTensor(index int) ([]byte, error) {
	if index != 0 {
		return nil, inference.ErrTensorIndex
	}
	return e.input, nil
}

// Invoke implements inference.Engine
func (e *Engine) Invoke() error {
	e.mu.Lock()
	var r Result
	if len(e.results) > 0 {
		i := e.calls
		if i >= len(e.results) {
			i = len(e.results) - 1
		}
		r = e.results[i]
	}
	e.calls++
	e.inputs = append(e.inputs, append([]byte(nil), e.input...))
	e.current = r
	e.mu.Unlock()

	if r.Err != nil {
		return fmt.Errorf("%w: %v", inference.ErrInvoke, r.Err)
	}
	return nil
}

// OutputTensor implements inference.Engine
func (e *Engine) OutputTensor(index int) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch index {
	case inference.OutputBoxes:
		return e.current.Boxes, nil
	case inference.OutputClasses:
		return e.current.Classes, nil
	case inference.OutputScores:
		return e.current.Scores, nil
	case inference.OutputCount:
		return []float32{float32(e.current.Count)}, nil
	}
	return nil, inference.ErrTensorIndex
}

// Close implements inference.Engine
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Calls returns the number of Invoke calls
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Inputs returns a copy of the input tensor at each Invoke
func (e *Engine) Inputs() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte(nil), e.inputs...)
}

// Closed reports whether Close was called
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
