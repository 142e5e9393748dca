package frame

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Wait once the mailbox has been closed
var ErrClosed = errors.New("mailbox closed")

// Mailbox is a single-slot, overwrite-on-push handoff between a capture
// goroutine and a consumer goroutine.
//
// At most one frame is held. Push always replaces whatever is held, read or
// not; replaced frames are gone. This is load shedding, not a queue: the
// producer never blocks on a slow consumer.
type Mailbox struct {
	mu     sync.Mutex
	frame  *Frame
	notify chan struct{} // closed and replaced on every Push
	closed bool
}

// NewMailbox creates an empty mailbox
func NewMailbox() *Mailbox {
	return &Mailbox{notify: make(chan struct{})}
}

// Push stores f, replacing any held frame. No-op after Close.
func (m *Mailbox) Push(f *Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.frame = f
	close(m.notify)
	m.notify = make(chan struct{})
}

// Load returns the held frame without clearing it, or nil if empty
func (m *Mailbox) Load() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// Take returns the held frame and clears the slot
func (m *Mailbox) Take() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.frame
	m.frame = nil
	return f
}

// Wait blocks until the held frame has a Seq greater than afterSeq and
// returns it without clearing the slot. Pass the Seq of the last frame
// processed so a consumer faster than capture sleeps instead of spinning on
// the same frame.
//
// Producers must assign Seq from 1 upwards before Push, as camera.Source
// does. A frame with Seq 0 is never newer than any afterSeq and is never
// returned.
func (m *Mailbox) Wait(ctx context.Context, afterSeq uint64) (*Frame, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if f := m.frame; f != nil && f.Seq > afterSeq {
			m.mu.Unlock()
			return f, nil
		}
		ch := m.notify
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close wakes all waiters with ErrClosed and rejects further pushes
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.frame = nil
	close(m.notify)
}
