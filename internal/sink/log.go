package sink

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facedetect/internal/detector"
)

// Log writes predictions to a logger. A change in the number of faces is
// logged at Info, everything else at Debug.
type Log struct {
	*Async
	logger    logrus.FieldLogger
	lastCount int
}

// NewLog creates a log sink
func NewLog(logger logrus.FieldLogger, queueSize int) *Log {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	l := &Log{logger: logger, lastCount: -1}
	l.Async = NewAsync("log", queueSize, l.write, logger)
	return l
}

// write runs on the worker goroutine only
func (l *Log) write(_ context.Context, p *detector.Prediction) error {
	entry := l.logger.WithFields(logrus.Fields{
		"frame_seq":  p.FrameSeq,
		"faces":      len(p.Faces),
		"latency_ms": p.LatencyMs(),
	})
	if len(p.Faces) != l.lastCount {
		l.lastCount = len(p.Faces)
		entry.Info("faces in view changed")
		return nil
	}
	entry.Debug("prediction")
	return nil
}
