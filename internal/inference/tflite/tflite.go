// Package tflite runs quantized SSD detection models with TensorFlow Lite.
package tflite

import (
	"errors"
	"fmt"
	"runtime"

	tflite "github.com/mattn/go-tflite"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facedetect/internal/inference"
)

// Options configures Load
type Options struct {
	NumThreads int
	Logger     logrus.FieldLogger
}

// Engine wraps a TFLite interpreter. The interpreter owns every tensor; the
// slices returned by InputTensor and OutputTensor point into its arena.
type Engine struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	shape       inference.Shape
}

// Load reads a model file and allocates its tensors
func Load(modelPath string, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	numThreads := opts.NumThreads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	model := tflite.NewModelFromFile(modelPath)
	if model == nil {
		return nil, fmt.Errorf("failed to load model %s", modelPath)
	}
	e := &Engine{model: model}

	e.options = tflite.NewInterpreterOptions()
	if e.options == nil {
		e.Close()
		return nil, errors.New("failed to create interpreter options")
	}
	e.options.SetNumThread(numThreads)
	e.options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.WithField("model", modelPath).Warn(msg)
	}, nil)

	e.interpreter = tflite.NewInterpreter(model, e.options)
	if e.interpreter == nil {
		e.Close()
		return nil, fmt.Errorf("failed to create interpreter for %s", modelPath)
	}
	if status := e.interpreter.AllocateTensors(); status != tflite.OK {
		e.Close()
		return nil, fmt.Errorf("failed to allocate tensors for %s", modelPath)
	}

	if err := e.validate(); err != nil {
		e.Close()
		return nil, fmt.Errorf("model %s: %w", modelPath, err)
	}

	logger.WithFields(logrus.Fields{
		"model":   modelPath,
		"input":   e.shape.String(),
		"threads": numThreads,
	}).Info("tflite model loaded")

	return e, nil
}

// validate checks the tensor layout the detector relies on
func (e *Engine) validate() error {
	if n := e.interpreter.GetInputTensorCount(); n < 1 {
		return errors.New("model has no input tensor")
	}
	in := e.interpreter.GetInputTensor(0)
	if in.Type() != tflite.UInt8 {
		return fmt.Errorf("input type %v, want uint8", in.Type())
	}
	if in.NumDims() != 4 || in.Dim(3) != 3 {
		return fmt.Errorf("input shape %v, want [1,H,W,3]", tensorInfo(in).Shape)
	}
	e.shape = inference.Shape{Width: in.Dim(2), Height: in.Dim(1), Channels: in.Dim(3)}

	if n := e.interpreter.GetOutputTensorCount(); n < inference.NumOutputs {
		return fmt.Errorf("model has %d outputs, want %d", n, inference.NumOutputs)
	}
	for i := 0; i < inference.NumOutputs; i++ {
		if t := e.interpreter.GetOutputTensor(i); t.Type() != tflite.Float32 {
			return fmt.Errorf("output %d type %v, want float32", i, t.Type())
		}
	}
	return nil
}

// InputShape implements inference.Engine
func (e *Engine) InputShape() inference.Shape { return e.shape }

// InputTensor implements inference.Engine
func (e *Engine) InputTensor(index int) ([]byte, error) {
	if index < 0 || index >= e.interpreter.GetInputTensorCount() {
		return nil, fmt.Errorf("%w: input %d", inference.ErrTensorIndex, index)
	}
	return e.interpreter.GetInputTensor(index).UInt8s(), nil
}

// Invoke implements inference.Engine
func (e *Engine) Invoke() error {
	if status := e.interpreter.Invoke(); status != tflite.OK {
		return fmt.Errorf("%w: status %v", inference.ErrInvoke, status)
	}
	return nil
}

// OutputTensor implements inference.Engine
func (e *Engine) OutputTensor(index int) ([]float32, error) {
	if index < 0 || index >= e.interpreter.GetOutputTensorCount() {
		return nil, fmt.Errorf("%w: output %d", inference.ErrTensorIndex, index)
	}
	return e.interpreter.GetOutputTensor(index).Float32s(), nil
}

// Close deletes the interpreter, options and model
func (e *Engine) Close() error {
	if e.interpreter != nil {
		e.interpreter.Delete()
		e.interpreter = nil
	}
	if e.options != nil {
		e.options.Delete()
		e.options = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
	return nil
}

// Describe lists the tensors of a model file
func Describe(modelPath string) (*inference.ModelInfo, error) {
	e, err := Load(modelPath, Options{NumThreads: 1, Logger: logrus.New()})
	if err != nil {
		return nil, err
	}
	defer e.Close()

	info := &inference.ModelInfo{Path: modelPath, Metadata: map[string]string{}}
	for i := 0; i < e.interpreter.GetInputTensorCount(); i++ {
		info.Inputs = append(info.Inputs, tensorInfo(e.interpreter.GetInputTensor(i)))
	}
	for i := 0; i < e.interpreter.GetOutputTensorCount(); i++ {
		info.Outputs = append(info.Outputs, tensorInfo(e.interpreter.GetOutputTensor(i)))
	}
	return info, nil
}

func tensorInfo(t *tflite.Tensor) inference.TensorInfo {
	shape := make([]int64, t.NumDims())
	for i := range shape {
		shape[i] = int64(t.Dim(i))
	}
	return inference.TensorInfo{Name: t.Name(), Shape: shape, Type: fmt.Sprint(t.Type())}
}
