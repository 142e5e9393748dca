package webcam

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"

	"github.com/dudu/facedetect/internal/camera"
)

// VideoFile replays a video file or stream URL as a capture device, paced
// at the configured frame rate
type VideoFile struct {
	stream
	path    string
	loop    bool
	limiter *rate.Limiter
}

// NewVideoFile creates a file-backed device. With loop set the file is
// rewound at its end instead of reporting an interruption.
func NewVideoFile(path string, loop bool, logger logrus.FieldLogger) *VideoFile {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &VideoFile{
		stream: stream{logger: logger.WithField("video", path)},
		path:   path,
		loop:   loop,
	}
}

// Open opens the file. A FPS of zero or less replays as fast as frames decode.
func (v *VideoFile) Open(cfg camera.DeviceConfig) error {
	vc, err := gocv.VideoCaptureFile(v.path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", camera.ErrNoDevice, v.path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: %s could not be opened", camera.ErrNoDevice, v.path)
	}

	if cfg.FPS > 0 {
		v.limiter = rate.NewLimiter(rate.Limit(cfg.FPS), 1)
	} else {
		v.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	v.attach(vc)
	return nil
}

// Start begins replay
func (v *VideoFile) Start(consumer camera.FrameConsumer, events camera.Events) error {
	return v.start(v.grab, consumer, events)
}

// Stop ends replay; a later Start resumes where it left off
func (v *VideoFile) Stop() error {
	return v.halt()
}

// Close releases the file
func (v *VideoFile) Close() error {
	return v.release()
}

func (v *VideoFile) grab(vc *gocv.VideoCapture, m *gocv.Mat) (bool, error) {
	if err := v.limiter.Wait(context.Background()); err != nil {
		return false, err
	}
	if vc.Read(m) && !m.Empty() {
		return true, nil
	}
	if !v.loop {
		return false, errStreamEnded
	}

	v.logger.Debug("rewinding video")
	vc.Set(gocv.VideoCapturePosFrames, 0)
	if vc.Read(m) && !m.Empty() {
		return true, nil
	}
	return false, errStreamEnded
}

// FrameCount returns the number of frames the container declares, or 0 when
// unknown (live streams)
func (v *VideoFile) FrameCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.capture == nil {
		return 0
	}
	n := int(v.capture.Get(gocv.VideoCaptureFrameCount))
	if n < 0 {
		return 0
	}
	return n
}
