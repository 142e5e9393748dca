// Package camera owns the capture session and publishes frames into a
// single-slot mailbox.
package camera

import (
	"errors"
	"fmt"

	"github.com/dudu/facedetect/internal/frame"
)

var (
	// ErrNoDevice means no usable capture device could be acquired
	ErrNoDevice = errors.New("no usable capture device")
	// ErrPermissionDenied is recorded when camera access is refused; Start
	// never returns it
	ErrPermissionDenied = errors.New("camera permission denied")
)

// StartupError is a recoverable configuration failure. The caller decides
// whether to retry, prompt the user or give up.
type StartupError struct {
	Op  string
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Op, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// FrameConsumer receives captured frames
type FrameConsumer interface {
	OnFrame(f *frame.Frame)
}

// Events receives session notifications from a device
type Events interface {
	OnRuntimeError(err error)
	// OnInterruption reports that capture was interrupted (began=true) or
	// resumed (began=false)
	OnInterruption(began bool, reason string)
}

// DeviceConfig fixes the capture resolution and rate
type DeviceConfig struct {
	Width  int
	Height int
	FPS    int
}

// Device is a capture device. Open acquires it, Start begins delivering
// frames on the device's own goroutine, Stop halts delivery.
type Device interface {
	Open(cfg DeviceConfig) error
	Start(consumer FrameConsumer, events Events) error
	Stop() error
	Close() error
}
