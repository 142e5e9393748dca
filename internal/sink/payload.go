package sink

import (
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/dudu/facedetect/internal/detector"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Payload is the wire form of a prediction
type Payload struct {
	ID         string        `json:"id"`
	FrameSeq   uint64        `json:"frame_seq"`
	CapturedAt time.Time     `json:"captured_at"`
	LatencyMs  float64       `json:"latency_ms"`
	Faces      []FacePayload `json:"faces"`
}

// FacePayload is one face with its normalized box
type FacePayload struct {
	Confidence float32 `json:"confidence"`
	Class      int     `json:"class"`
	Y0         float32 `json:"y0"`
	X0         float32 `json:"x0"`
	Y1         float32 `json:"y1"`
	X1         float32 `json:"x1"`
}

// NewPayload converts a prediction and assigns it a fresh id
func NewPayload(p *detector.Prediction) Payload {
	faces := make([]FacePayload, len(p.Faces))
	for i, f := range p.Faces {
		faces[i] = FacePayload{
			Confidence: f.Confidence,
			Class:      f.Class,
			Y0:         f.Box.Y0,
			X0:         f.Box.X0,
			Y1:         f.Box.Y1,
			X1:         f.Box.X1,
		}
	}
	return Payload{
		ID:         uuid.NewString(),
		FrameSeq:   p.FrameSeq,
		CapturedAt: p.Timestamp,
		LatencyMs:  p.LatencyMs(),
		Faces:      faces,
	}
}
