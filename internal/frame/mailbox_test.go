package frame

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"
)

func seqFrame(seq uint64) *Frame {
	f := NewBGRA(make([]byte, 4), 1, 1)
	f.Seq = seq
	return f
}

func TestMailboxOverwrite(t *testing.T) {
	m := NewMailbox()
	test.That(t, m.Load(), test.ShouldBeNil)

	var last *Frame
	for i := uint64(1); i <= 50; i++ {
		last = seqFrame(i)
		m.Push(last)
	}

	got := m.Load()
	test.That(t, got, test.ShouldEqual, last)
	test.That(t, got.Seq, test.ShouldEqual, uint64(50))

	// read-without-clear keeps returning the same frame
	test.That(t, m.Load(), test.ShouldEqual, last)
}

func TestMailboxTake(t *testing.T) {
	m := NewMailbox()
	f := seqFrame(1)
	m.Push(f)

	test.That(t, m.Take(), test.ShouldEqual, f)
	test.That(t, m.Take(), test.ShouldBeNil)
	test.That(t, m.Load(), test.ShouldBeNil)
}

func TestMailboxWait(t *testing.T) {
	ctx := context.Background()

	t.Run("returns newer frame immediately", func(t *testing.T) {
		m := NewMailbox()
		m.Push(seqFrame(3))
		f, err := m.Wait(ctx, 2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, f.Seq, test.ShouldEqual, uint64(3))

		// still held
		test.That(t, m.Load().Seq, test.ShouldEqual, uint64(3))
	})

	t.Run("blocks until a newer frame arrives", func(t *testing.T) {
		m := NewMailbox()
		m.Push(seqFrame(1))

		done := make(chan *Frame, 1)
		go func() {
			f, err := m.Wait(ctx, 1)
			if err == nil {
				done <- f
			}
		}()

		select {
		case <-done:
			t.Fatal("Wait returned a frame it had already seen")
		case <-time.After(20 * time.Millisecond):
		}

		m.Push(seqFrame(2))
		select {
		case f := <-done:
			test.That(t, f.Seq, test.ShouldEqual, uint64(2))
		case <-time.After(time.Second):
			t.Fatal("Wait did not wake on push")
		}
	})

	t.Run("honours context", func(t *testing.T) {
		m := NewMailbox()
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := m.Wait(cctx, 0)
		test.That(t, err, test.ShouldEqual, context.DeadlineExceeded)
	})

	t.Run("close wakes waiters", func(t *testing.T) {
		m := NewMailbox()
		errc := make(chan error, 1)
		go func() {
			_, err := m.Wait(ctx, 0)
			errc <- err
		}()
		time.Sleep(5 * time.Millisecond)
		m.Close()
		test.That(t, <-errc, test.ShouldEqual, ErrClosed)

		m.Push(seqFrame(9))
		test.That(t, m.Load(), test.ShouldBeNil)
	})
}

func TestMailboxWaitUnsequenced(t *testing.T) {
	m := NewMailbox()
	m.Push(seqFrame(0))
	test.That(t, m.Load(), test.ShouldNotBeNil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	f, err := m.Wait(ctx, 0)
	test.That(t, f, test.ShouldBeNil)
	test.That(t, err, test.ShouldEqual, context.DeadlineExceeded)
}

func TestMailboxConcurrent(t *testing.T) {
	m := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const n = 2000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= n; i++ {
			m.Push(seqFrame(i))
		}
	}()

	var last uint64
	for last < n {
		f, err := m.Wait(ctx, last)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, f.Seq, test.ShouldBeGreaterThan, last)
		last = f.Seq
	}
	wg.Wait()
	test.That(t, m.Load().Seq, test.ShouldEqual, uint64(n))
}

func TestFrameValidate(t *testing.T) {
	f := NewBGRA(make([]byte, 2*2*4), 2, 2)
	test.That(t, f.Validate(), test.ShouldBeNil)
	test.That(t, f.Packed(), test.ShouldBeTrue)

	short := NewBGRA(make([]byte, 15), 2, 2)
	test.That(t, short.Validate(), test.ShouldNotBeNil)

	padded := &Frame{Data: make([]byte, 12+8), Width: 2, Height: 2, Stride: 12, Format: FormatBGRA}
	test.That(t, padded.Validate(), test.ShouldBeNil)
	test.That(t, padded.Packed(), test.ShouldBeFalse)

	badStride := &Frame{Data: make([]byte, 64), Width: 4, Height: 2, Stride: 8, Format: FormatBGRA}
	test.That(t, badStride.Validate(), test.ShouldNotBeNil)
}

func TestFramePixels(t *testing.T) {
	padded := &Frame{
		Data:   []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 9, 10, 11, 12, 13, 14, 15, 16},
		Width:  2,
		Height: 2,
		Stride: 10,
		Format: FormatBGRA,
	}
	test.That(t, padded.Pixels(), test.ShouldResemble, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})

	packed := NewBGRA([]byte{1, 2, 3, 4, 99}, 1, 1)
	test.That(t, packed.Pixels(), test.ShouldResemble, []byte{1, 2, 3, 4})
}
