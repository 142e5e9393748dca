// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New
type Options struct {
	// Level is a logrus level name; empty means info
	Level string
	// File enables a rotating log file in addition to stderr
	File string
	// Caller adds file:line of the call site
	Caller bool
	// Output overrides stderr
	Output io.Writer
}

// New creates a logger with the nested console formatter
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}
	logger.SetLevel(level)

	f := &formatter.Formatter{
		TimestampFormat: "15:04:05.000",
		HideKeys:        false,
		CallerFirst:     true,
	}
	if opts.Caller {
		f.CustomCallerFormatter = func(fr *runtime.Frame) string {
			s := strings.Split(fr.Function, ".")
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(fr.File), fr.Line, s[len(s)-1])
		}
		logger.SetReportCaller(true)
	}
	logger.SetFormatter(f)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	writers := []io.Writer{out}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
		f.NoColors = true
	}
	logger.SetOutput(io.MultiWriter(writers...))

	return logger, nil
}
