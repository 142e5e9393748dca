package onnx

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facedetect/internal/inference"
)

// Describe reads tensor and metadata information from an ONNX model file
func Describe(modelPath, libraryPath string) (*inference.ModelInfo, error) {
	if err := Initialize(libraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model info: %w", err)
	}

	info := &inference.ModelInfo{Path: modelPath, Metadata: map[string]string{}}
	for _, in := range inputs {
		info.Inputs = append(info.Inputs, tensorInfo(in))
	}
	for _, out := range outputs {
		info.Outputs = append(info.Outputs, tensorInfo(out))
	}

	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		// metadata is optional
		return info, nil
	}
	defer metadata.Destroy()

	if producer, err := metadata.GetProducerName(); err == nil {
		info.Metadata["producer"] = producer
	}
	if version, err := metadata.GetVersion(); err == nil {
		info.Metadata["version"] = fmt.Sprint(version)
	}
	if domain, err := metadata.GetDomain(); err == nil {
		info.Metadata["domain"] = domain
	}
	if desc, err := metadata.GetDescription(); err == nil {
		info.Metadata["description"] = desc
	}

	return info, nil
}

func tensorInfo(io ort.InputOutputInfo) inference.TensorInfo {
	return inference.TensorInfo{
		Name:  io.Name,
		Shape: append([]int64(nil), io.Dimensions...),
		Type:  fmt.Sprint(io.DataType),
	}
}
