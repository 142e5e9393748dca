package onnx

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facedetect/internal/inference"
)

// inputShape validates an NHWC uint8 image input
func inputShape(info ort.InputOutputInfo) (inference.Shape, error) {
	if info.DataType != ort.TensorElementDataTypeUint8 {
		return inference.Shape{}, fmt.Errorf("input %s has type %v, want uint8", info.Name, info.DataType)
	}
	d := info.Dimensions
	if len(d) != 4 {
		return inference.Shape{}, fmt.Errorf("input %s has %d dims, want NHWC", info.Name, len(d))
	}
	if d[1] <= 0 || d[2] <= 0 || d[3] != 3 {
		return inference.Shape{}, fmt.Errorf("input %s shape %v is not fixed NHWC with 3 channels", info.Name, d)
	}
	return inference.Shape{Width: int(d[2]), Height: int(d[1]), Channels: int(d[3])}, nil
}

// outputKeywords maps name fragments to output slots
var outputKeywords = [inference.NumOutputs][]string{
	inference.OutputBoxes:   {"box", "location"},
	inference.OutputClasses: {"class", "label"},
	inference.OutputScores:  {"score", "confidence"},
	inference.OutputCount:   {"num", "count"},
}

// orderOutputs arranges model outputs as boxes, classes, scores, count.
// Outputs are matched by name; if names are not descriptive the model's own
// order is used.
func orderOutputs(infos []ort.InputOutputInfo) ([inference.NumOutputs]ort.InputOutputInfo, error) {
	var ordered [inference.NumOutputs]ort.InputOutputInfo
	if len(infos) < inference.NumOutputs {
		return ordered, fmt.Errorf("model has %d outputs, want %d", len(infos), inference.NumOutputs)
	}

	used := make(map[int]bool)
	matched := 0
	for slot, keywords := range outputKeywords {
		for i, info := range infos {
			if used[i] || !containsAny(strings.ToLower(info.Name), keywords) {
				continue
			}
			ordered[slot] = info
			used[i] = true
			matched++
			break
		}
	}
	if matched != inference.NumOutputs {
		copy(ordered[:], infos[:inference.NumOutputs])
	}

	for _, info := range ordered {
		if info.DataType != ort.TensorElementDataTypeFloat {
			return ordered, fmt.Errorf("output %s has type %v, want float32", info.Name, info.DataType)
		}
	}
	return ordered, nil
}

// resolveDims replaces dynamic dimensions: batch becomes 1, others maxRows
func resolveDims(dims ort.Shape, maxRows int) []int64 {
	out := make([]int64, len(dims))
	for i, d := range dims {
		switch {
		case d > 0:
			out[i] = d
		case i == 0:
			out[i] = 1
		default:
			out[i] = int64(maxRows)
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
