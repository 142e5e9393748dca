package camera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facedetect/internal/frame"
)

// State is the lifecycle state of a Source
type State int

const (
	// StateIdle is the zero State
	StateIdle State = iota
	StateConfiguring
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Observer holds optional hooks for session notifications. Notifications
// are logged whether or not a hook is set.
type Observer struct {
	OnRuntimeError func(err error)
	OnInterruption func(began bool, reason string)
}

// Option configures a Source
type Option func(*Source)

// WithObserver installs notification hooks
func WithObserver(o Observer) Option {
	return func(s *Source) { s.observer = o }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Source) { s.logger = l }
}

// WithDeviceConfig sets the capture resolution and rate
func WithDeviceConfig(cfg DeviceConfig) Option {
	return func(s *Source) { s.cfg = cfg }
}

// Source owns a capture device and publishes each captured frame into a
// mailbox, overwriting whatever frame is there.
//
// Lifecycle: Configuring -> Running -> Stopped. A Source is Configuring from
// NewSource on; Idle is only the zero State. If permission is denied the
// source stays in Configuring and Start is a silent no-op. A device failure
// also leaves it in Configuring, but the next Configure or Start retries the
// permission check and the device setup.
type Source struct {
	device   Device
	auth     Authorizer
	mailbox  *frame.Mailbox
	cfg      DeviceConfig
	observer Observer
	logger   logrus.FieldLogger

	mu         sync.Mutex
	state      State
	configured bool
	gate       *setupGate

	running atomic.Bool
	seq     atomic.Uint64
}

// setupGate is closed once the permission decision and device setup of one
// Configure attempt are resolved. It gates Start.
type setupGate struct {
	ready      chan struct{}
	once       sync.Once
	err        error
	authorized bool
}

func newSetupGate() *setupGate {
	return &setupGate{ready: make(chan struct{})}
}

func (g *setupGate) resolve(err error, authorized bool) {
	g.once.Do(func() {
		g.err = err
		g.authorized = authorized
		close(g.ready)
	})
}

// NewSource creates a source in the Configuring state. The permission check
// runs on the first Configure or Start.
func NewSource(device Device, auth Authorizer, mailbox *frame.Mailbox, opts ...Option) *Source {
	s := &Source{
		device:  device,
		auth:    auth,
		mailbox: mailbox,
		cfg:     DeviceConfig{Width: 1920, Height: 1080, FPS: 30},
		state:   StateConfiguring,
		gate:    newSetupGate(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	s.logger = s.logger.WithField("session", uuid.NewString())
	return s
}

// State returns the current lifecycle state
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Configure checks camera permission and acquires the device. Later calls
// are no-ops until a device failure rearms it.
//
// If the permission is not yet determined, access is requested and the
// device setup runs when the answer arrives; Configure returns immediately.
// A device failure is returned as *StartupError, either here or from Start.
func (s *Source) Configure() error {
	s.mu.Lock()
	if s.configured {
		s.mu.Unlock()
		return nil
	}
	s.configured = true
	g := s.gate
	s.mu.Unlock()

	status := s.auth.Status()
	s.logger.WithField("authorization", status.String()).Debug("configuring capture session")

	switch status {
	case StatusAuthorized:
		err := s.openDevice(g)
		g.resolve(err, true)
		return err
	case StatusNotDetermined:
		s.auth.RequestAccess(func(granted bool) {
			if !granted {
				s.logger.Info("camera access denied")
				g.resolve(ErrPermissionDenied, false)
				return
			}
			g.resolve(s.openDevice(g), true)
		})
		return nil
	default:
		s.logger.Info("camera access denied")
		g.resolve(ErrPermissionDenied, false)
		return nil
	}
}

// openDevice opens the device; on failure the next Configure starts over
// with a fresh gate
func (s *Source) openDevice(g *setupGate) error {
	err := s.device.Open(s.cfg)
	if err == nil {
		return nil
	}
	s.logger.WithError(err).Error("failed to acquire capture device")

	s.mu.Lock()
	if s.gate == g {
		s.gate = newSetupGate()
		s.configured = false
	}
	s.mu.Unlock()
	return &StartupError{Op: "open", Err: err}
}

// Start begins capture. It waits for a pending permission decision. When
// permission was denied it returns nil without starting anything.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	g := s.gate
	s.mu.Unlock()
	if err := s.Configure(); err != nil {
		return err
	}

	select {
	case <-g.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	if !g.authorized {
		return nil
	}
	if g.err != nil {
		return g.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return nil
	}

	s.running.Store(true)
	if err := s.device.Start(s, s); err != nil {
		s.running.Store(false)
		return &StartupError{Op: "start", Err: err}
	}
	s.state = StateRunning
	s.logger.WithFields(logrus.Fields{
		"width":  s.cfg.Width,
		"height": s.cfg.Height,
		"fps":    s.cfg.FPS,
	}).Info("capture started")
	return nil
}

// Stop halts capture and detaches session notifications. An in-flight
// inference on the consumer side is not interrupted.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return nil
	}

	s.running.Store(false)
	err := s.device.Stop()
	s.state = StateStopped
	s.logger.Info("capture stopped")
	return err
}

// Close stops capture and releases the device
func (s *Source) Close() error {
	stopErr := s.Stop()
	if err := s.device.Close(); err != nil {
		return err
	}
	return stopErr
}

// OnFrame implements FrameConsumer; it runs on the device goroutine
func (s *Source) OnFrame(f *frame.Frame) {
	if !s.running.Load() {
		return
	}
	f.Seq = s.seq.Add(1)
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	s.mailbox.Push(f)
}

// OnRuntimeError implements Events. The session is not restarted.
func (s *Source) OnRuntimeError(err error) {
	if !s.running.Load() {
		return
	}
	s.logger.WithError(err).Warn("capture session runtime error")
	if s.observer.OnRuntimeError != nil {
		s.observer.OnRuntimeError(err)
	}
}

// OnInterruption implements Events
func (s *Source) OnInterruption(began bool, reason string) {
	if !s.running.Load() {
		return
	}
	entry := s.logger.WithField("reason", reason)
	if began {
		entry.Warn("capture session interrupted")
	} else {
		entry.Info("capture session interruption ended")
	}
	if s.observer.OnInterruption != nil {
		s.observer.OnInterruption(began, reason)
	}
}
