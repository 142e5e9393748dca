// Package webcam implements camera.Device on top of OpenCV video capture.
package webcam

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/camera"
	"github.com/dudu/facedetect/internal/frame"
)

// maxReadFailures is how many empty reads in a row count as an interruption
const maxReadFailures = 10

// retryDelay is the pause after an empty read
const retryDelay = 10 * time.Millisecond

// errStreamEnded is returned by a grab func when the stream has no more frames
var errStreamEnded = errors.New("end of stream")

// grabFunc reads the next frame into m. It returns false for a transient
// empty read and errStreamEnded when nothing more will arrive.
type grabFunc func(vc *gocv.VideoCapture, m *gocv.Mat) (bool, error)

// stream runs the capture loop shared by the concrete devices
type stream struct {
	logger logrus.FieldLogger

	mu      sync.Mutex
	capture *gocv.VideoCapture
	width   int
	height  int
	stop    chan struct{}
	done    chan struct{}
}

func (s *stream) attach(vc *gocv.VideoCapture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capture = vc
	s.width = int(vc.Get(gocv.VideoCaptureFrameWidth))
	s.height = int(vc.Get(gocv.VideoCaptureFrameHeight))
}

// Size returns the negotiated frame size; the device may not honour the
// requested resolution
func (s *stream) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *stream) start(grab grabFunc, consumer camera.FrameConsumer, events camera.Events) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return fmt.Errorf("%w: device not open", camera.ErrNoDevice)
	}
	if s.stop != nil {
		return nil
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.capture, grab, consumer, events, s.stop, s.done)
	return nil
}

func (s *stream) loop(vc *gocv.VideoCapture, grab grabFunc, consumer camera.FrameConsumer, events camera.Events, stop, done chan struct{}) {
	defer close(done)

	raw := gocv.NewMat()
	defer raw.Close()
	bgra := gocv.NewMat()
	defer bgra.Close()

	failures := 0
	interrupted := false

	for {
		select {
		case <-stop:
			return
		default:
		}

		ok, err := grab(vc, &raw)
		if errors.Is(err, errStreamEnded) {
			events.OnInterruption(true, "end of stream")
			return
		}
		if err != nil {
			events.OnRuntimeError(err)
			return
		}
		if !ok || raw.Empty() {
			failures++
			if failures == maxReadFailures && !interrupted {
				interrupted = true
				events.OnInterruption(true, "device stopped delivering frames")
			}
			time.Sleep(retryDelay)
			continue
		}
		if interrupted {
			interrupted = false
			events.OnInterruption(false, "device resumed")
		}
		failures = 0

		f, err := toFrame(raw, &bgra)
		if err != nil {
			events.OnRuntimeError(err)
			continue
		}
		consumer.OnFrame(f)
	}
}

func (s *stream) halt() error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (s *stream) release() error {
	if err := s.halt(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture != nil {
		err := s.capture.Close()
		s.capture = nil
		return err
	}
	return nil
}

// toFrame converts a captured BGR image to a BGRA frame that owns its bytes
func toFrame(raw gocv.Mat, bgra *gocv.Mat) (*frame.Frame, error) {
	switch raw.Channels() {
	case 4:
		raw.CopyTo(bgra)
	case 3:
		gocv.CvtColor(raw, bgra, gocv.ColorBGRToBGRA)
	case 1:
		gocv.CvtColor(raw, bgra, gocv.ColorGrayToBGRA)
	default:
		return nil, fmt.Errorf("unsupported capture format with %d channels", raw.Channels())
	}

	return &frame.Frame{
		Data:   bgra.ToBytes(),
		Width:  bgra.Cols(),
		Height: bgra.Rows(),
		Stride: bgra.Step(),
		Format: frame.FormatBGRA,
	}, nil
}
