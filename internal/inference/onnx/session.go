// Package onnx runs SSD detection models exported to ONNX through ONNX Runtime.
package onnx

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"github.com/dudu/facedetect/internal/inference"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// Initialize sets up ONNX Runtime environment (call once at startup)
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Options configures Load
type Options struct {
	// LibraryPath is the onnxruntime shared library; empty uses the default
	LibraryPath string
	NumThreads  int
	// MaxDetections sizes outputs whose row dimension is dynamic
	MaxDetections int
	CoreML        bool
	Logger        logrus.FieldLogger
}

// Engine is an ONNX Runtime session with preallocated tensors
type Engine struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[uint8]
	outputs   [inference.NumOutputs]*ort.Tensor[float32]
	shape     inference.Shape
	modelPath string
}

// Load opens an NHWC uint8 SSD model
func Load(modelPath string, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxDetections <= 0 {
		opts.MaxDetections = 10
	}

	if err := Initialize(opts.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info for %s: %w", modelPath, err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("model %s has %d inputs, want 1", modelPath, len(inputs))
	}
	in := inputs[0]
	shape, err := inputShape(in)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", modelPath, err)
	}

	ordered, err := orderOutputs(outputs)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", modelPath, err)
	}

	e := &Engine{shape: shape, modelPath: modelPath}

	e.input, err = ort.NewEmptyTensor[uint8](ort.NewShape(1, int64(shape.Height), int64(shape.Width), int64(shape.Channels)))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outNames := make([]string, inference.NumOutputs)
	outValues := make([]ort.Value, inference.NumOutputs)
	for i, info := range ordered {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(resolveDims(info.Dimensions, opts.MaxDetections)...))
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to create output tensor %s: %w", info.Name, err)
		}
		e.outputs[i] = t
		outNames[i] = info.Name
		outValues[i] = t
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if opts.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}
	if opts.CoreML {
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			opts.Logger.WithError(err).WithField("model", modelPath).Warn("CoreML unavailable, using CPU")
		}
	}

	e.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{in.Name},
		outNames,
		[]ort.Value{e.input},
		outValues,
		options,
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	opts.Logger.WithFields(logrus.Fields{
		"model": modelPath,
		"input": shape.String(),
	}).Info("onnx model loaded")

	return e, nil
}

// InputShape implements inference.Engine
func (e *Engine) InputShape() inference.Shape { return e.shape }

// InputTensor implements inference.Engine
func (e *Engine) InputTensor(index int) ([]byte, error) {
	if index != 0 {
		return nil, fmt.Errorf("%w: input %d", inference.ErrTensorIndex, index)
	}
	return e.input.GetData(), nil
}

// Invoke implements inference.Engine
func (e *Engine) Invoke() error {
	if err := e.session.Run(); err != nil {
		return fmt.Errorf("%w: %v", inference.ErrInvoke, err)
	}
	return nil
}

// OutputTensor implements inference.Engine
func (e *Engine) OutputTensor(index int) ([]float32, error) {
	if index < 0 || index >= inference.NumOutputs {
		return nil, fmt.Errorf("%w: output %d", inference.ErrTensorIndex, index)
	}
	return e.outputs[index].GetData(), nil
}

// Close releases session and tensors
func (e *Engine) Close() error {
	var err error
	if e.session != nil {
		err = multierr.Append(err, e.session.Destroy())
		e.session = nil
	}
	if e.input != nil {
		err = multierr.Append(err, e.input.Destroy())
		e.input = nil
	}
	for i, t := range e.outputs {
		if t != nil {
			err = multierr.Append(err, t.Destroy())
			e.outputs[i] = nil
		}
	}
	return err
}
