package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dudu/facedetect/internal/camera"
	"github.com/dudu/facedetect/internal/config"
	"github.com/dudu/facedetect/internal/frame"
	"github.com/dudu/facedetect/internal/inference/onnx"
	"github.com/dudu/facedetect/internal/pipeline"
	"github.com/dudu/facedetect/internal/sink"
	"github.com/dudu/facedetect/internal/ui"
)

const statsInterval = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Detect faces on a live camera or video",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLive(cmd.Context(), cfg, logger)
	},
}

func init() {
	f := runCmd.Flags()
	f.IntVarP(&flagCfg.CameraIndex, "camera", "c", flagCfg.CameraIndex, "Camera device index")
	f.StringVar(&flagCfg.VideoPath, "video", flagCfg.VideoPath, "Read frames from a video file or stream URL instead of a camera")
	f.BoolVar(&flagCfg.Loop, "loop", flagCfg.Loop, "Rewind the video at its end")
	f.IntVar(&flagCfg.CaptureWidth, "width", flagCfg.CaptureWidth, "Capture width")
	f.IntVar(&flagCfg.CaptureHeight, "height", flagCfg.CaptureHeight, "Capture height")
	f.IntVar(&flagCfg.FPS, "fps", flagCfg.FPS, "Capture frames per second")
	f.StringVar(&flagCfg.Authorization, "auth", flagCfg.Authorization, "Camera permission: granted, denied or prompt")
	f.BoolVarP(&flagCfg.Preview, "preview", "p", flagCfg.Preview, "Show preview window")
	f.StringVar(&flagCfg.RedisURL, "redis", flagCfg.RedisURL, "Publish predictions to this Redis server")
	f.StringVar(&flagCfg.RedisChannel, "redis-channel", flagCfg.RedisChannel, "Redis pub/sub channel")
	f.StringVar(&flagCfg.PostgresURL, "postgres", flagCfg.PostgresURL, "Record predictions in this PostgreSQL database")
	f.IntVar(&flagCfg.QueueSize, "queue-size", flagCfg.QueueSize, "Predictions buffered per sink")
	rootCmd.AddCommand(runCmd)
}

func runLive(ctx context.Context, c config.Config, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.Backend == "onnx" {
		defer onnx.Shutdown()
	}
	det, err := openDetector(c, log)
	if err != nil {
		return err
	}
	defer det.Close()

	renderers, closers, err := openSinks(ctx, c, log)
	defer func() {
		if err := closeAll(closers); err != nil {
			log.WithError(err).Warn("failed to close sinks")
		}
	}()
	if err != nil {
		return err
	}

	var window *ui.Window
	if c.Preview {
		window = ui.NewWindow("facedetect", 1280, 720)
		defer window.Close()
		renderers = append(renderers, window)
	}

	mailbox := frame.NewMailbox()
	defer mailbox.Close()

	endOfVideo := c.VideoPath != "" && !c.Loop
	src := camera.NewSource(newDevice(c, log), newAuthorizer(c.Authorization), mailbox,
		camera.WithLogger(log),
		camera.WithDeviceConfig(camera.DeviceConfig{Width: c.CaptureWidth, Height: c.CaptureHeight, FPS: c.FPS}),
		camera.WithObserver(camera.Observer{
			OnInterruption: func(began bool, reason string) {
				if began && endOfVideo {
					cancel()
				}
			},
		}),
	)
	defer src.Close()

	if err := src.Configure(); err != nil {
		return fmt.Errorf("failed to configure camera: %w", err)
	}
	if err := src.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to start camera: %w", err)
	}
	if src.State() != camera.StateRunning {
		log.Warn("camera access was not granted, waiting for interrupt")
		<-ctx.Done()
		return nil
	}

	p := pipeline.New(mailbox, det, renderers, log)
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	go logStats(ctx, p, log)

	if window != nil {
		present(ctx, window, mailbox, log)
	} else {
		<-ctx.Done()
	}

	cancel()
	if err := src.Stop(); err != nil {
		log.WithError(err).Warn("failed to stop capture")
	}
	// the in-flight inference completes before Run returns
	err = <-errc

	stats := p.Stats()
	log.WithFields(logrus.Fields{
		"processed": stats.Processed,
		"failed":    stats.Failed,
	}).Info("shutting down")
	return err
}

// present shows frames on the calling (main) thread until the window is
// closed, q or ESC is pressed, or ctx ends
func present(ctx context.Context, window *ui.Window, mailbox *frame.Mailbox, log logrus.FieldLogger) {
	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if f := mailbox.Load(); f != nil && f.Seq != lastSeq {
			lastSeq = f.Seq
			if err := window.Show(f); err != nil {
				log.WithError(err).Debug("failed to show frame")
			}
		}

		// WaitKey must be called to process window events on macOS
		key := window.WaitKey(10)
		if key == 'q' || key == 27 {
			log.Info("quit requested")
			return
		}
		if !window.IsOpen() {
			return
		}
	}
}

func logStats(ctx context.Context, p *pipeline.Pipeline, log logrus.FieldLogger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s := p.Stats()
		log.WithFields(logrus.Fields{
			"fps":           float64(s.Processed-last) / statsInterval.Seconds(),
			"failed":        s.Failed,
			"preprocess_ms": ms(s.LastTiming.Preprocess),
			"inference_ms":  ms(s.LastTiming.Inference),
			"decode_ms":     ms(s.LastTiming.Decode),
		}).Info("pipeline stats")
		last = s.Processed
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// openSinks connects the configured prediction sinks. Closers are returned
// even on error so partial setups can be released.
func openSinks(ctx context.Context, c config.Config, log logrus.FieldLogger) (pipeline.Renderers, []io.Closer, error) {
	var (
		renderers pipeline.Renderers
		closers   []io.Closer
	)

	logSink := sink.NewLog(log, c.QueueSize)
	renderers = append(renderers, logSink)
	closers = append(closers, logSink)

	if c.RedisURL != "" {
		client, err := sink.DialRedis(ctx, c.RedisURL, log)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, client)
		r := sink.NewRedis(client, c.RedisChannel, c.QueueSize, log)
		renderers = append(renderers, r)
		closers = append(closers, r)
	}

	if c.PostgresURL != "" {
		conn, err := sink.ConnectPostgres(ctx, c.PostgresURL)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, closerFunc(func() error { return conn.Close(context.Background()) }))
		pg, err := sink.NewPostgres(ctx, conn, c.QueueSize, log)
		if err != nil {
			return nil, closers, err
		}
		renderers = append(renderers, pg)
		closers = append(closers, pg)
	}

	return renderers, closers, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// closeAll closes in reverse order so sinks drain before their connections go
func closeAll(closers []io.Closer) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i].Close())
	}
	return err
}
