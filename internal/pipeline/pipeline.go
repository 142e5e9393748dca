// Package pipeline runs the consumption loop: it pulls the latest frame from
// the mailbox, detects faces and hands the prediction to a renderer.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/frame"
	"github.com/dudu/facedetect/internal/inference"
	"github.com/dudu/facedetect/internal/preprocess"
)

// Stats holds pipeline counters
type Stats struct {
	Processed  uint64
	Failed     uint64
	LastSeq    uint64
	LastTiming detector.Timing
}

// Pipeline orchestrates detection over a frame mailbox
type Pipeline struct {
	mailbox  *frame.Mailbox
	detector FaceDetector
	renderer Renderer
	logger   logrus.FieldLogger

	processed atomic.Uint64
	failed    atomic.Uint64
	lastSeq   atomic.Uint64

	running sync.Mutex
}

// New creates a pipeline. renderer may be nil.
func New(mailbox *frame.Mailbox, det FaceDetector, renderer Renderer, logger logrus.FieldLogger) *Pipeline {
	if renderer == nil {
		renderer = Renderers(nil)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{
		mailbox:  mailbox,
		detector: det,
		renderer: renderer,
		logger:   logger,
	}
}

// Run consumes frames until ctx is cancelled or the mailbox is closed.
//
// A frame already processed is never processed again; when capture is slower
// than inference Run waits for the next frame. Frames overwritten while an
// inference was in flight are never seen. Run returns nil on a clean stop.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.TryLock() {
		return errors.New("pipeline already running")
	}
	defer p.running.Unlock()

	p.logger.Debug("consumption loop started")
	defer p.logger.Debug("consumption loop stopped")

	last := p.lastSeq.Load()
	for {
		f, err := p.mailbox.Wait(ctx, last)
		if err != nil {
			if errors.Is(err, frame.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		last = f.Seq
		p.Process(f)
	}
}

// Process runs detection on one frame and renders the result. It returns
// the prediction, or nil when the frame was dropped.
func (p *Pipeline) Process(f *frame.Frame) *detector.Prediction {
	p.lastSeq.Store(f.Seq)

	pred, err := p.detector.Detect(f)
	if err != nil {
		p.failed.Add(1)
		entry := p.logger.WithError(err).WithField("frame_seq", f.Seq)
		switch {
		case errors.Is(err, inference.ErrInvoke):
			entry.Debug("inference failed, frame dropped")
		case errors.Is(err, preprocess.ErrFrameGeometry), errors.Is(err, preprocess.ErrTensorSize):
			entry.Error("frame does not match its declared geometry, frame dropped")
		default:
			entry.Warn("detection failed, frame dropped")
		}
		return nil
	}

	p.processed.Add(1)
	p.logger.WithFields(logrus.Fields{
		"frame_seq":  pred.FrameSeq,
		"faces":      len(pred.Faces),
		"latency_ms": pred.LatencyMs(),
	}).Trace("prediction")

	p.renderer.OnPrediction(pred)
	return pred
}

// Stats returns a snapshot of the counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		LastSeq:    p.lastSeq.Load(),
		LastTiming: p.detector.LastTiming(),
	}
}
