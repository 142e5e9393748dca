package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.viam.com/test"

	"github.com/dudu/facedetect/internal/frame"
)

type fakeDevice struct {
	mu       sync.Mutex
	openErr  error
	opened   int
	started  int
	stopped  int
	closed   bool
	consumer FrameConsumer
	events   Events
}

func (d *fakeDevice) Open(cfg DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened++
	return d.openErr
}

func (d *fakeDevice) setOpenErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

func (d *fakeDevice) Start(consumer FrameConsumer, events Events) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started++
	d.consumer = consumer
	d.events = events
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) deliver(f *frame.Frame) {
	d.mu.Lock()
	c := d.consumer
	d.mu.Unlock()
	if c != nil {
		c.OnFrame(f)
	}
}

func (d *fakeDevice) counts() (opened, started, stopped int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened, d.started, d.stopped
}

// deferredAuthorizer holds the access callback until answer is called
type deferredAuthorizer struct {
	mu       sync.Mutex
	callback func(bool)
}

func (a *deferredAuthorizer) Status() AuthorizationStatus { return StatusNotDetermined }

func (a *deferredAuthorizer) RequestAccess(callback func(bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = callback
}

func (a *deferredAuthorizer) answer(granted bool) {
	a.mu.Lock()
	cb := a.callback
	a.callback = nil
	a.mu.Unlock()
	cb(granted)
}

// answerWhenAsked waits for a pending request and answers it
func (a *deferredAuthorizer) answerWhenAsked(t *testing.T, granted bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		a.mu.Lock()
		asked := a.callback != nil
		a.mu.Unlock()
		if asked {
			a.answer(granted)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("access was never requested")
		}
		time.Sleep(time.Millisecond)
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func pixel() *frame.Frame {
	return frame.NewBGRA(make([]byte, 4), 1, 1)
}

func TestSourceAuthorized(t *testing.T) {
	dev := &fakeDevice{}
	mb := frame.NewMailbox()
	src := NewSource(dev, StaticAuthorizer(StatusAuthorized), mb, WithLogger(quietLogger()))
	test.That(t, src.State(), test.ShouldEqual, StateConfiguring)
	opened, _, _ := dev.counts()
	test.That(t, opened, test.ShouldEqual, 0)

	test.That(t, src.Configure(), test.ShouldBeNil)
	test.That(t, src.Configure(), test.ShouldBeNil)
	test.That(t, src.State(), test.ShouldEqual, StateConfiguring)

	test.That(t, src.Start(context.Background()), test.ShouldBeNil)
	test.That(t, src.State(), test.ShouldEqual, StateRunning)

	dev.deliver(pixel())
	dev.deliver(pixel())
	got := mb.Load()
	test.That(t, got, test.ShouldNotBeNil)
	test.That(t, got.Seq, test.ShouldEqual, uint64(2))
	test.That(t, got.Timestamp.IsZero(), test.ShouldBeFalse)

	// starting twice does not restart the device
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)
	opened, started, _ := dev.counts()
	test.That(t, opened, test.ShouldEqual, 1)
	test.That(t, started, test.ShouldEqual, 1)
}

func TestSourceStartConfigures(t *testing.T) {
	dev := &fakeDevice{}
	src := NewSource(dev, StaticAuthorizer(StatusAuthorized), frame.NewMailbox(), WithLogger(quietLogger()))
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)
	test.That(t, src.State(), test.ShouldEqual, StateRunning)
}

func TestSourceGrantedLater(t *testing.T) {
	dev := &fakeDevice{}
	auth := &deferredAuthorizer{}
	src := NewSource(dev, auth, frame.NewMailbox(), WithLogger(quietLogger()))

	test.That(t, src.Configure(), test.ShouldBeNil)
	opened, _, _ := dev.counts()
	test.That(t, opened, test.ShouldEqual, 0)

	done := make(chan error, 1)
	go func() { done <- src.Start(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Start returned before permission was decided")
	case <-time.After(20 * time.Millisecond):
	}

	auth.answer(true)
	select {
	case err := <-done:
		test.That(t, err, test.ShouldBeNil)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after permission was granted")
	}
	test.That(t, src.State(), test.ShouldEqual, StateRunning)
	opened, started, _ := dev.counts()
	test.That(t, opened, test.ShouldEqual, 1)
	test.That(t, started, test.ShouldEqual, 1)
}

func TestSourceStartHonorsContext(t *testing.T) {
	src := NewSource(&fakeDevice{}, &deferredAuthorizer{}, frame.NewMailbox(), WithLogger(quietLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := src.Start(ctx)
	test.That(t, errors.Is(err, context.DeadlineExceeded), test.ShouldBeTrue)
}

func TestSourceDenied(t *testing.T) {
	for _, auth := range []Authorizer{StaticAuthorizer(StatusDenied), StaticAuthorizer(StatusNotDetermined)} {
		t.Run(auth.Status().String(), func(t *testing.T) {
			dev := &fakeDevice{}
			mb := frame.NewMailbox()
			src := NewSource(dev, auth, mb, WithLogger(quietLogger()))

			test.That(t, src.Configure(), test.ShouldBeNil)
			test.That(t, src.Start(context.Background()), test.ShouldBeNil)
			test.That(t, src.State(), test.ShouldEqual, StateConfiguring)

			opened, started, _ := dev.counts()
			test.That(t, opened, test.ShouldEqual, 0)
			test.That(t, started, test.ShouldEqual, 0)
			test.That(t, mb.Load(), test.ShouldBeNil)
		})
	}
}

func TestSourceOpenFailure(t *testing.T) {
	dev := &fakeDevice{openErr: fmt.Errorf("%w: index 3", ErrNoDevice)}
	src := NewSource(dev, StaticAuthorizer(StatusAuthorized), frame.NewMailbox(), WithLogger(quietLogger()))

	err := src.Configure()
	var startup *StartupError
	test.That(t, errors.As(err, &startup), test.ShouldBeTrue)
	test.That(t, startup.Op, test.ShouldEqual, "open")
	test.That(t, errors.Is(err, ErrNoDevice), test.ShouldBeTrue)

	test.That(t, src.State(), test.ShouldEqual, StateConfiguring)

	// each Start retries the device setup
	err = src.Start(context.Background())
	test.That(t, errors.Is(err, ErrNoDevice), test.ShouldBeTrue)
	opened, started, _ := dev.counts()
	test.That(t, opened, test.ShouldEqual, 2)
	test.That(t, started, test.ShouldEqual, 0)

	dev.setOpenErr(nil)
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)
	test.That(t, src.State(), test.ShouldEqual, StateRunning)
	opened, started, _ = dev.counts()
	test.That(t, opened, test.ShouldEqual, 3)
	test.That(t, started, test.ShouldEqual, 1)
}

func TestSourceDeferredOpenFailure(t *testing.T) {
	dev := &fakeDevice{openErr: ErrNoDevice}
	auth := &deferredAuthorizer{}
	src := NewSource(dev, auth, frame.NewMailbox(), WithLogger(quietLogger()))
	test.That(t, src.Configure(), test.ShouldBeNil)

	done := make(chan error, 1)
	go func() { done <- src.Start(context.Background()) }()
	auth.answerWhenAsked(t, true)

	select {
	case err := <-done:
		var startup *StartupError
		test.That(t, errors.As(err, &startup), test.ShouldBeTrue)
		test.That(t, errors.Is(err, ErrNoDevice), test.ShouldBeTrue)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after the device failed")
	}

	// the retry asks for access again
	dev.setOpenErr(nil)
	go func() { done <- src.Start(context.Background()) }()
	auth.answerWhenAsked(t, true)
	select {
	case err := <-done:
		test.That(t, err, test.ShouldBeNil)
	case <-time.After(time.Second):
		t.Fatal("retried Start did not return")
	}
	test.That(t, src.State(), test.ShouldEqual, StateRunning)
}

func TestSourceStop(t *testing.T) {
	dev := &fakeDevice{}
	mb := frame.NewMailbox()
	var interruptions []bool
	src := NewSource(dev, StaticAuthorizer(StatusAuthorized), mb,
		WithLogger(quietLogger()),
		WithObserver(Observer{OnInterruption: func(began bool, reason string) {
			interruptions = append(interruptions, began)
		}}),
	)
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)

	dev.events.OnInterruption(true, "unplugged")
	dev.deliver(pixel())
	test.That(t, mb.Load().Seq, test.ShouldEqual, uint64(1))

	test.That(t, src.Stop(), test.ShouldBeNil)
	test.That(t, src.State(), test.ShouldEqual, StateStopped)

	// frames and notifications after stop are ignored
	dev.deliver(pixel())
	dev.events.OnInterruption(false, "replugged")
	test.That(t, mb.Load().Seq, test.ShouldEqual, uint64(1))
	test.That(t, interruptions, test.ShouldResemble, []bool{true})

	// stopping twice is harmless
	test.That(t, src.Stop(), test.ShouldBeNil)
	_, _, stopped := dev.counts()
	test.That(t, stopped, test.ShouldEqual, 1)

	// restart from stopped
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)
	test.That(t, src.State(), test.ShouldEqual, StateRunning)
	dev.deliver(pixel())
	test.That(t, mb.Load().Seq, test.ShouldEqual, uint64(2))

	test.That(t, src.Close(), test.ShouldBeNil)
	test.That(t, dev.closed, test.ShouldBeTrue)
}

func TestSourceRuntimeErrorObserver(t *testing.T) {
	dev := &fakeDevice{}
	var got error
	src := NewSource(dev, StaticAuthorizer(StatusAuthorized), frame.NewMailbox(),
		WithLogger(quietLogger()),
		WithObserver(Observer{OnRuntimeError: func(err error) { got = err }}),
	)
	test.That(t, src.Start(context.Background()), test.ShouldBeNil)

	boom := errors.New("media services reset")
	dev.events.OnRuntimeError(boom)
	test.That(t, got, test.ShouldEqual, boom)
	test.That(t, src.State(), test.ShouldEqual, StateRunning)
}
