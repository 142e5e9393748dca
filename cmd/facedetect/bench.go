package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dudu/facedetect/internal/camera"
	"github.com/dudu/facedetect/internal/camera/webcam"
	"github.com/dudu/facedetect/internal/config"
	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/frame"
	"github.com/dudu/facedetect/internal/inference/onnx"
)

var benchLimit int

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run detection on every frame of a video and report latency",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(cmd.Context(), cfg, logger)
	},
}

func init() {
	f := benchCmd.Flags()
	f.StringVar(&flagCfg.VideoPath, "video", flagCfg.VideoPath, "Video file to process (required)")
	f.IntVar(&benchLimit, "limit", 0, "Stop after this many frames (0 = whole video)")
	rootCmd.AddCommand(benchCmd)
}

// benchRun consumes frames synchronously on the device goroutine, so no
// frame is skipped
type benchRun struct {
	det   *detector.Detector
	bar   *progressbar.ProgressBar
	limit int
	log   logrus.FieldLogger

	finished atomic.Bool
	done     chan struct{}
	once     sync.Once

	frames     int
	failed     int
	faces      int
	latency    time.Duration
	preproc    time.Duration
	runtimeErr error
}

func (b *benchRun) finish() {
	b.once.Do(func() {
		b.finished.Store(true)
		close(b.done)
	})
}

// OnFrame implements camera.FrameConsumer
func (b *benchRun) OnFrame(f *frame.Frame) {
	if b.finished.Load() {
		return
	}
	pred, err := b.det.Detect(f)
	b.frames++
	if err != nil {
		b.failed++
		b.log.WithError(err).WithField("frame_seq", f.Seq).Debug("frame failed")
	} else {
		b.faces += len(pred.Faces)
		b.latency += pred.InferenceLatency
		b.preproc += b.det.LastTiming().Preprocess
	}
	_ = b.bar.Add(1)
	if b.limit > 0 && b.frames >= b.limit {
		b.finish()
	}
}

// OnRuntimeError implements camera.Events
func (b *benchRun) OnRuntimeError(err error) {
	b.runtimeErr = err
	b.finish()
}

// OnInterruption implements camera.Events
func (b *benchRun) OnInterruption(began bool, reason string) {
	if began {
		b.finish()
	}
}

func runBench(ctx context.Context, c config.Config, log *logrus.Logger) error {
	if c.VideoPath == "" {
		return errors.New("--video is required")
	}

	if c.Backend == "onnx" {
		defer onnx.Shutdown()
	}
	det, err := openDetector(c, log)
	if err != nil {
		return err
	}
	defer det.Close()

	video := webcam.NewVideoFile(c.VideoPath, false, log)
	// FPS 0 disables pacing
	if err := video.Open(camera.DeviceConfig{}); err != nil {
		return err
	}
	defer video.Close()

	total := video.FrameCount()
	if benchLimit > 0 && (total == 0 || benchLimit < total) {
		total = benchLimit
	}
	if total == 0 {
		total = -1
	}

	run := &benchRun{
		det:   det,
		limit: benchLimit,
		log:   log,
		done:  make(chan struct{}),
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetDescription("detecting"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		),
	}

	start := time.Now()
	if err := video.Start(run, run); err != nil {
		return err
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		run.finish()
	}
	if err := video.Stop(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	_ = run.bar.Finish()
	fmt.Fprintln(os.Stderr)

	if run.runtimeErr != nil {
		return fmt.Errorf("video decode failed: %w", run.runtimeErr)
	}

	ok := run.frames - run.failed
	fmt.Printf("Frames:          %d (%d failed)\n", run.frames, run.failed)
	fmt.Printf("Faces:           %d\n", run.faces)
	if ok > 0 {
		fmt.Printf("Mean inference:  %.2fms\n", ms(run.latency)/float64(ok))
		fmt.Printf("Mean preprocess: %.2fms\n", ms(run.preproc)/float64(ok))
		fmt.Printf("Faces per frame: %.2f\n", float64(run.faces)/float64(ok))
	}
	fmt.Printf("Throughput:      %.1f FPS\n", float64(run.frames)/elapsed.Seconds())
	return nil
}
