package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facedetect/internal/camera"
	"github.com/dudu/facedetect/internal/camera/webcam"
	"github.com/dudu/facedetect/internal/config"
	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/inference"
	"github.com/dudu/facedetect/internal/inference/onnx"
	"github.com/dudu/facedetect/internal/inference/tflite"
	"github.com/dudu/facedetect/internal/preprocess"
	"github.com/dudu/facedetect/internal/preprocess/cvresize"
)

// openEngine loads the configured model once; the caller closes it
func openEngine(c config.Config, log logrus.FieldLogger) (inference.Engine, error) {
	log = log.WithFields(logrus.Fields{"model": c.ModelPath, "backend": c.Backend})
	log.Info("loading model")

	var (
		engine inference.Engine
		err    error
	)
	switch c.Backend {
	case "onnx":
		engine, err = onnx.Load(c.ModelPath, onnx.Options{
			LibraryPath: c.ORTLibrary,
			NumThreads:  c.Threads,
			CoreML:      runtime.GOOS == "darwin",
			Logger:      log,
		})
	default:
		engine, err = tflite.Load(c.ModelPath, tflite.Options{NumThreads: c.Threads, Logger: log})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	shape := engine.InputShape()
	if shape.Width != c.InputWidth || shape.Height != c.InputHeight {
		engine.Close()
		return nil, fmt.Errorf("model input is %s, configured %dx%d", shape, c.InputWidth, c.InputHeight)
	}
	log.WithField("input", shape.String()).Info("model loaded")
	return engine, nil
}

func newResizer(name string) preprocess.Resizer {
	switch name {
	case "nfnt":
		return preprocess.NewNfntResizer(preprocess.InterpolationBilinear)
	case "gocv":
		return cvresize.New()
	default:
		return preprocess.NewXDrawResizer(preprocess.InterpolationBilinear)
	}
}

// openDetector loads the engine and wraps it in a detector
func openDetector(c config.Config, log logrus.FieldLogger) (*detector.Detector, error) {
	engine, err := openEngine(c, log)
	if err != nil {
		return nil, err
	}
	det, err := detector.New(engine, newResizer(c.Resizer), c.Threshold32())
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}
	return det, nil
}

func newAuthorizer(mode string) camera.Authorizer {
	switch mode {
	case "denied":
		return camera.StaticAuthorizer(camera.StatusDenied)
	case "prompt":
		return camera.NewPromptAuthorizer(os.Stdin, os.Stderr)
	default:
		return camera.StaticAuthorizer(camera.StatusAuthorized)
	}
}

// newDevice opens a video file when one is configured, a webcam otherwise
func newDevice(c config.Config, log logrus.FieldLogger) camera.Device {
	if c.VideoPath != "" {
		return webcam.NewVideoFile(c.VideoPath, c.Loop, log)
	}
	return webcam.New(c.CameraIndex, log)
}
