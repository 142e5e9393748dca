package detector

// DefaultThreshold is the minimum confidence of a reported face
const DefaultThreshold float32 = 0.5

// Decoder turns raw SSD output tensors into faces
type Decoder struct {
	Threshold float32
}

// NewDecoder creates a decoder with the given confidence threshold
func NewDecoder(threshold float32) Decoder {
	return Decoder{Threshold: threshold}
}

// Decode reads the first count rows and keeps faces with
// confidence >= threshold, in row order. There is no sorting and no
// suppression of overlapping boxes.
//
// count is clamped to the rows actually present so a malformed count tensor
// cannot index past the buffers.
func (d Decoder) Decode(boxes, classes, scores []float32, count int) []Face {
	if count > len(scores) {
		count = len(scores)
	}
	if count > len(boxes)/4 {
		count = len(boxes) / 4
	}
	if count <= 0 {
		return nil
	}

	faces := make([]Face, 0, count)
	for i := 0; i < count; i++ {
		// NaN never passes
		if !(scores[i] >= d.Threshold) {
			continue
		}
		face := Face{
			Confidence: scores[i],
			Box: Box{
				Y0: boxes[4*i],
				X0: boxes[4*i+1],
				Y1: boxes[4*i+2],
				X1: boxes[4*i+3],
			},
		}
		if i < len(classes) {
			face.Class = int(classes[i])
		}
		faces = append(faces, face)
	}
	return faces
}
