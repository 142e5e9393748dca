package webcam

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/camera"
)

// Webcam is a local camera opened by index
type Webcam struct {
	stream
	index int
}

// New creates a webcam device; nothing is opened until Open
func New(index int, logger logrus.FieldLogger) *Webcam {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Webcam{
		stream: stream{logger: logger.WithField("camera", index)},
		index:  index,
	}
}

// Open acquires the camera and requests the configured resolution and rate
func (w *Webcam) Open(cfg camera.DeviceConfig) error {
	vc, err := gocv.OpenVideoCapture(w.index)
	if err != nil {
		return fmt.Errorf("%w: camera %d: %v", camera.ErrNoDevice, w.index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: camera %d could not be opened", camera.ErrNoDevice, w.index)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	w.attach(vc)

	width, height := w.Size()
	if width != cfg.Width || height != cfg.Height {
		w.logger.WithFields(logrus.Fields{
			"requested": fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"actual":    fmt.Sprintf("%dx%d", width, height),
		}).Warn("camera does not support requested resolution")
	}
	return nil
}

// Start begins the capture loop
func (w *Webcam) Start(consumer camera.FrameConsumer, events camera.Events) error {
	return w.start(grabLive, consumer, events)
}

// Stop ends the capture loop and waits for it to exit
func (w *Webcam) Stop() error {
	return w.halt()
}

// Close releases the camera
func (w *Webcam) Close() error {
	return w.release()
}

func grabLive(vc *gocv.VideoCapture, m *gocv.Mat) (bool, error) {
	return vc.Read(m), nil
}
