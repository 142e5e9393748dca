package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dudu/facedetect/internal/config"
	"github.com/dudu/facedetect/internal/logging"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// envFile is the .env file read before FACEDETECT_* variables
	envFile string
	// flagCfg receives flag values; only flags the user set are applied
	flagCfg = config.Default()

	cfg    config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:          "facedetect",
	Short:        "Real-time face detection on camera frames",
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(envFile)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		logger, err = logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		return err
	},
}

// flagBindings copies a set flag into the loaded configuration
var flagBindings = map[string]func(c *config.Config){
	"model":         func(c *config.Config) { c.ModelPath = flagCfg.ModelPath },
	"backend":       func(c *config.Config) { c.Backend = flagCfg.Backend },
	"ort-lib":       func(c *config.Config) { c.ORTLibrary = flagCfg.ORTLibrary },
	"threads":       func(c *config.Config) { c.Threads = flagCfg.Threads },
	"input-width":   func(c *config.Config) { c.InputWidth = flagCfg.InputWidth },
	"input-height":  func(c *config.Config) { c.InputHeight = flagCfg.InputHeight },
	"threshold":     func(c *config.Config) { c.Threshold = flagCfg.Threshold },
	"resizer":       func(c *config.Config) { c.Resizer = flagCfg.Resizer },
	"log-level":     func(c *config.Config) { c.LogLevel = flagCfg.LogLevel },
	"log-file":      func(c *config.Config) { c.LogFile = flagCfg.LogFile },
	"camera":        func(c *config.Config) { c.CameraIndex = flagCfg.CameraIndex },
	"video":         func(c *config.Config) { c.VideoPath = flagCfg.VideoPath },
	"loop":          func(c *config.Config) { c.Loop = flagCfg.Loop },
	"width":         func(c *config.Config) { c.CaptureWidth = flagCfg.CaptureWidth },
	"height":        func(c *config.Config) { c.CaptureHeight = flagCfg.CaptureHeight },
	"fps":           func(c *config.Config) { c.FPS = flagCfg.FPS },
	"auth":          func(c *config.Config) { c.Authorization = flagCfg.Authorization },
	"preview":       func(c *config.Config) { c.Preview = flagCfg.Preview },
	"redis":         func(c *config.Config) { c.RedisURL = flagCfg.RedisURL },
	"redis-channel": func(c *config.Config) { c.RedisChannel = flagCfg.RedisChannel },
	"postgres":      func(c *config.Config) { c.PostgresURL = flagCfg.PostgresURL },
	"queue-size":    func(c *config.Config) { c.QueueSize = flagCfg.QueueSize },
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	for name, apply := range flagBindings {
		if cmd.Flags().Changed(name) {
			apply(c)
		}
	}
}

// Execute runs the root command until it returns or the process is signalled
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env", ".env", "Environment file to load")
	pf.StringVarP(&flagCfg.ModelPath, "model", "m", flagCfg.ModelPath, "Detection model file")
	pf.StringVarP(&flagCfg.Backend, "backend", "b", flagCfg.Backend, "Inference backend: tflite or onnx")
	pf.StringVar(&flagCfg.ORTLibrary, "ort-lib", flagCfg.ORTLibrary, "ONNX Runtime shared library")
	pf.IntVar(&flagCfg.Threads, "threads", flagCfg.Threads, "Inference threads (0 = backend default)")
	pf.IntVar(&flagCfg.InputWidth, "input-width", flagCfg.InputWidth, "Expected model input width")
	pf.IntVar(&flagCfg.InputHeight, "input-height", flagCfg.InputHeight, "Expected model input height")
	pf.Float64VarP(&flagCfg.Threshold, "threshold", "t", flagCfg.Threshold, "Minimum face confidence")
	pf.StringVar(&flagCfg.Resizer, "resizer", flagCfg.Resizer, "Frame resizer: xdraw, nfnt or gocv")
	pf.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "Log level")
	pf.StringVar(&flagCfg.LogFile, "log-file", flagCfg.LogFile, "Also log to this rotating file")
}
