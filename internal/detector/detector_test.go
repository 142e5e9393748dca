package detector

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"

	"github.com/dudu/facedetect/internal/frame"
	"github.com/dudu/facedetect/internal/inference"
	"github.com/dudu/facedetect/internal/inference/inferencetest"
)

var smallShape = inference.Shape{Width: 4, Height: 4, Channels: 3}

func testFrame(seq uint64) *frame.Frame {
	data := make([]byte, 8*8*4)
	for i := range data {
		data[i] = byte(i)
	}
	f := frame.NewBGRA(data, 8, 8)
	f.Seq = seq
	return f
}

func TestDecodeScenario(t *testing.T) {
	faces := NewDecoder(0.5).Decode(
		[]float32{0.1, 0.1, 0.4, 0.4, 0.5, 0.5, 0.9, 0.9},
		[]float32{0, 0},
		[]float32{0.9, 0.3},
		2,
	)
	test.That(t, len(faces), test.ShouldEqual, 1)
	test.That(t, faces[0].Confidence, test.ShouldEqual, float32(0.9))
	test.That(t, faces[0].Box, test.ShouldResemble, Box{Y0: 0.1, X0: 0.1, Y1: 0.4, X1: 0.4})
}

func TestDecodeProperties(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for iter := 0; iter < 200; iter++ {
		n := r.Intn(20)
		count := r.Intn(n + 1)
		threshold := r.Float32()

		boxes := make([]float32, 4*n)
		scores := make([]float32, n)
		classes := make([]float32, n)
		for i := range boxes {
			boxes[i] = r.Float32()
		}
		for i := range scores {
			scores[i] = r.Float32()
		}

		faces := NewDecoder(threshold).Decode(boxes, classes, scores, count)
		test.That(t, len(faces), test.ShouldBeLessThanOrEqualTo, count)

		prev := -1
		for _, f := range faces {
			test.That(t, f.Confidence, test.ShouldBeGreaterThanOrEqualTo, threshold)
			// row order is preserved
			idx := -1
			for i := prev + 1; i < count; i++ {
				if scores[i] == f.Confidence && boxes[4*i] == f.Box.Y0 {
					idx = i
					break
				}
			}
			test.That(t, idx, test.ShouldBeGreaterThan, prev)
			prev = idx
		}
	}
}

func TestDecodeClampsCount(t *testing.T) {
	d := NewDecoder(0)
	test.That(t, d.Decode(nil, nil, nil, 5), test.ShouldBeEmpty)
	test.That(t, d.Decode([]float32{0, 0, 1, 1}, nil, []float32{1, 1}, 7), test.ShouldHaveLength, 1)
	test.That(t, d.Decode([]float32{0, 0, 1, 1}, nil, []float32{1}, -3), test.ShouldBeEmpty)
}

func TestDecodeRejectsNaN(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	boxes := []float32{
		0.1, 0.1, 0.4, 0.4,
		0.2, 0.2, 0.5, 0.5,
		0.3, 0.3, 0.6, 0.6,
	}

	faces := NewDecoder(0.5).Decode(boxes, nil, []float32{nan, float32(math.Inf(-1)), inf}, 3)
	test.That(t, faces, test.ShouldHaveLength, 1)
	test.That(t, faces[0].Confidence, test.ShouldEqual, inf)
	test.That(t, faces[0].Box.Y0, test.ShouldEqual, float32(0.3))

	// a NaN threshold accepts nothing
	test.That(t, NewDecoder(nan).Decode(boxes, nil, []float32{0.9, 0.9, 0.9}, 3), test.ShouldBeEmpty)
}

func TestDecodePassesInvertedBoxes(t *testing.T) {
	faces := NewDecoder(0.5).Decode([]float32{0.8, 0.8, 0.2, 0.2}, nil, []float32{0.7}, 1)
	test.That(t, faces, test.ShouldHaveLength, 1)
	test.That(t, faces[0].Box.Width(), test.ShouldBeLessThan, float32(0))
}

func TestBoxScale(t *testing.T) {
	r := Box{Y0: 0.25, X0: 0.25, Y1: 0.75, X1: 0.75}.Scale(200, 100)
	test.That(t, r, test.ShouldResemble, Rect{X: 50, Y: 25, Width: 100, Height: 50})
	test.That(t, r.Image().Min.X, test.ShouldEqual, 50)
	test.That(t, r.Image().Max.Y, test.ShouldEqual, 75)
}

func TestDetect(t *testing.T) {
	engine := inferencetest.NewEngine(smallShape, inferencetest.Result{
		Boxes:   []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.5, 0.6, 0.6},
		Classes: []float32{0, 0},
		Scores:  []float32{0.95, 0.2},
		Count:   2,
	})
	d, err := New(engine, nil, DefaultThreshold)
	test.That(t, err, test.ShouldBeNil)

	pred, err := d.Detect(testFrame(7))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pred.FrameSeq, test.ShouldEqual, uint64(7))
	test.That(t, pred.Faces, test.ShouldHaveLength, 1)
	test.That(t, pred.Faces[0].Box.X1, test.ShouldEqual, float32(0.4))
	test.That(t, pred.LatencyMs(), test.ShouldBeGreaterThanOrEqualTo, 0.0)

	inputs := engine.Inputs()
	test.That(t, inputs, test.ShouldHaveLength, 1)
	test.That(t, len(inputs[0]), test.ShouldEqual, smallShape.Size())

	test.That(t, d.Close(), test.ShouldBeNil)
	test.That(t, engine.Closed(), test.ShouldBeTrue)
}

func TestDetectInvokeFailure(t *testing.T) {
	engine := inferencetest.NewEngine(smallShape,
		inferencetest.Result{Err: errors.New("delegate lost")},
		inferencetest.Result{Boxes: []float32{0, 0, 1, 1}, Scores: []float32{0.8}, Count: 1},
	)
	d, err := New(engine, nil, DefaultThreshold)
	test.That(t, err, test.ShouldBeNil)

	pred, err := d.Detect(testFrame(1))
	test.That(t, pred, test.ShouldBeNil)
	test.That(t, errors.Is(err, inference.ErrInvoke), test.ShouldBeTrue)

	pred, err = d.Detect(testFrame(2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pred.Faces, test.ShouldHaveLength, 1)
}

func TestNewRejectsChannels(t *testing.T) {
	engine := inferencetest.NewEngine(inference.Shape{Width: 4, Height: 4, Channels: 1})
	_, err := New(engine, nil, DefaultThreshold)
	test.That(t, err, test.ShouldNotBeNil)
}
