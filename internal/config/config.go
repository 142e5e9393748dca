// Package config loads facedetect settings from defaults, a .env file and
// FACEDETECT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable
const EnvPrefix = "FACEDETECT_"

// Config holds all runtime settings
type Config struct {
	ModelPath   string  `validate:"required"`
	Backend     string  `validate:"oneof=tflite onnx"`
	ORTLibrary  string  `validate:"required_if=Backend onnx"`
	Threads     int     `validate:"gte=0,lte=64"`
	InputWidth  int     `validate:"gt=0"`
	InputHeight int     `validate:"gt=0"`
	Threshold   float64 `validate:"gte=0,lte=1"`

	CameraIndex   int    `validate:"gte=0"`
	VideoPath     string
	Loop          bool
	CaptureWidth  int    `validate:"gt=0"`
	CaptureHeight int    `validate:"gt=0"`
	FPS           int    `validate:"gt=0,lte=240"`
	Resizer       string `validate:"oneof=xdraw nfnt gocv"`
	Authorization string `validate:"oneof=granted denied prompt"`
	Preview       bool

	RedisURL     string `validate:"omitempty,url"`
	RedisChannel string
	PostgresURL  string `validate:"omitempty,url"`
	QueueSize    int    `validate:"gt=0"`

	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFile  string
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		ModelPath:     "models/mobilenet_ssd_320x320.tflite",
		Backend:       "tflite",
		ORTLibrary:    defaultORTLibrary(),
		Threads:       0,
		InputWidth:    320,
		InputHeight:   320,
		Threshold:     0.5,
		CameraIndex:   0,
		CaptureWidth:  1920,
		CaptureHeight: 1080,
		FPS:           30,
		Resizer:       "xdraw",
		Authorization: "granted",
		Preview:       true,
		RedisChannel:  "facedetect:predictions",
		QueueSize:     64,
		LogLevel:      "info",
	}
}

func defaultORTLibrary() string {
	if p := os.Getenv("ONNXRUNTIME_LIB_PATH"); p != "" {
		return p
	}
	return "/opt/homebrew/lib/libonnxruntime.dylib"
}

// Load reads the given .env files (".env" when none are named; a missing
// file is not an error), then applies FACEDETECT_* variables over the
// defaults. Variables already set in the environment win over .env.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("MODEL", &c.ModelPath)
	str("BACKEND", &c.Backend)
	str("ORT_LIBRARY", &c.ORTLibrary)
	num("THREADS", &c.Threads)
	num("INPUT_WIDTH", &c.InputWidth)
	num("INPUT_HEIGHT", &c.InputHeight)
	if v, ok := lookup(EnvPrefix + "THRESHOLD"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTHRESHOLD: %w", EnvPrefix, err))
		} else {
			c.Threshold = f
		}
	}
	num("CAMERA", &c.CameraIndex)
	str("VIDEO", &c.VideoPath)
	boolean("LOOP", &c.Loop)
	num("CAPTURE_WIDTH", &c.CaptureWidth)
	num("CAPTURE_HEIGHT", &c.CaptureHeight)
	num("FPS", &c.FPS)
	str("RESIZER", &c.Resizer)
	str("AUTHORIZATION", &c.Authorization)
	boolean("PREVIEW", &c.Preview)
	str("REDIS_URL", &c.RedisURL)
	str("REDIS_CHANNEL", &c.RedisChannel)
	str("POSTGRES_URL", &c.PostgresURL)
	num("QUEUE_SIZE", &c.QueueSize)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FILE", &c.LogFile)

	return errors.Join(errs...)
}

var validate = validator.New()

// Validate checks field constraints
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Threshold32 returns the threshold as the detector expects it
func (c Config) Threshold32() float32 {
	return float32(c.Threshold)
}
