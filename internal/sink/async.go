// Package sink delivers predictions to logs, Redis and Postgres without
// blocking the consumption loop.
package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facedetect/internal/detector"
)

// DefaultQueueSize is the number of predictions a sink buffers
const DefaultQueueSize = 64

// handlerTimeout bounds a single delivery
const handlerTimeout = 2 * time.Second

// Handler delivers one prediction
type Handler func(ctx context.Context, p *detector.Prediction) error

// Async hands predictions to a background worker through a bounded queue.
// When the queue is full the prediction is dropped and counted.
type Async struct {
	name    string
	handler Handler
	logger  logrus.FieldLogger
	queue   chan *detector.Prediction
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewAsync starts a worker for handler
func NewAsync(name string, size int, handler Handler, logger logrus.FieldLogger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	a := &Async{
		name:    name,
		handler: handler,
		logger:  logger.WithField("sink", name),
		queue:   make(chan *detector.Prediction, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for p := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		err := a.handler(ctx, p)
		cancel()
		if err != nil {
			a.failed.Add(1)
			a.logger.WithError(err).WithField("frame_seq", p.FrameSeq).Warn("delivery failed")
			continue
		}
		a.delivered.Add(1)
	}
}

// OnPrediction queues p. It never blocks.
func (a *Async) OnPrediction(p *detector.Prediction) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- p:
	default:
		if a.dropped.Add(1) == 1 {
			a.logger.Warn("queue full, dropping predictions")
		}
	}
}

// Close stops accepting predictions and waits for queued ones to drain
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	a.logger.WithFields(logrus.Fields{
		"delivered": a.delivered.Load(),
		"dropped":   a.dropped.Load(),
		"failed":    a.failed.Load(),
	}).Debug("sink closed")
	return nil
}

// Counts returns delivered, dropped and failed totals
func (a *Async) Counts() (delivered, dropped, failed uint64) {
	return a.delivered.Load(), a.dropped.Load(), a.failed.Load()
}
