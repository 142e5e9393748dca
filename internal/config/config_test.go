package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
)

func env(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.InputWidth, test.ShouldEqual, 320)
	test.That(t, cfg.InputHeight, test.ShouldEqual, 320)
	test.That(t, cfg.Threshold32(), test.ShouldEqual, float32(0.5))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(env(map[string]string{
		"FACEDETECT_BACKEND":   "onnx",
		"FACEDETECT_THRESHOLD": "0.7",
		"FACEDETECT_CAMERA":    "2",
		"FACEDETECT_LOOP":      "true",
		"FACEDETECT_RESIZER":   "nfnt",
		"FACEDETECT_REDIS_URL": "redis://localhost:6379/0",
	}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Backend, test.ShouldEqual, "onnx")
	test.That(t, cfg.Threshold, test.ShouldEqual, 0.7)
	test.That(t, cfg.CameraIndex, test.ShouldEqual, 2)
	test.That(t, cfg.Loop, test.ShouldBeTrue)
	test.That(t, cfg.Resizer, test.ShouldEqual, "nfnt")
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}

func TestApplyEnvBadNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(env(map[string]string{
		"FACEDETECT_FPS":       "fast",
		"FACEDETECT_THRESHOLD": "high",
		"FACEDETECT_PREVIEW":   "maybe",
	}))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "FACEDETECT_FPS")
	test.That(t, err.Error(), test.ShouldContainSubstring, "FACEDETECT_THRESHOLD")
	test.That(t, err.Error(), test.ShouldContainSubstring, "FACEDETECT_PREVIEW")
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name  string
		mod   func(c *Config)
		field string
	}{
		{"threshold", func(c *Config) { c.Threshold = 1.5 }, "Threshold"},
		{"backend", func(c *Config) { c.Backend = "coreml" }, "Backend"},
		{"resizer", func(c *Config) { c.Resizer = "magic" }, "Resizer"},
		{"authorization", func(c *Config) { c.Authorization = "maybe" }, "Authorization"},
		{"input", func(c *Config) { c.InputWidth = 0 }, "InputWidth"},
		{"model", func(c *Config) { c.ModelPath = "" }, "ModelPath"},
		{"ort library", func(c *Config) { c.Backend = "onnx"; c.ORTLibrary = "" }, "ORTLibrary"},
		{"redis", func(c *Config) { c.RedisURL = "not a url" }, "RedisURL"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "LogLevel"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mod(&cfg)
			err := cfg.Validate()
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.field)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	content := strings.Join([]string{
		"FACEDETECT_MODEL=models/test.tflite",
		"FACEDETECT_FPS=15",
	}, "\n")
	test.That(t, os.WriteFile(file, []byte(content), 0o600), test.ShouldBeNil)

	// the real environment wins over the file
	t.Setenv("FACEDETECT_FPS", "24")
	t.Setenv("FACEDETECT_MODEL", "")
	os.Unsetenv("FACEDETECT_MODEL")

	cfg, err := Load(file)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ModelPath, test.ShouldEqual, "models/test.tflite")
	test.That(t, cfg.FPS, test.ShouldEqual, 24)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	test.That(t, err, test.ShouldBeNil)
}
