// Package ui draws frames and detected faces in a preview window.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/frame"
)

var (
	boxColor  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	textColor = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// Window manages the preview display.
//
// OnPrediction may be called from any goroutine; every other method must be
// called from the goroutine that created the window (on macOS, the main
// thread).
type Window struct {
	window     *gocv.Window
	name       string
	lastFrame  time.Time
	frameCount int
	fps        float64

	mu   sync.Mutex
	pred *detector.Prediction
}

// NewWindow creates a new preview window
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		lastFrame: time.Now(),
	}
}

// OnPrediction stores the latest prediction for the next Show
func (w *Window) OnPrediction(p *detector.Prediction) {
	w.mu.Lock()
	w.pred = p
	w.mu.Unlock()
}

// Prediction returns the latest prediction, or nil
func (w *Window) Prediction() *detector.Prediction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pred
}

// Show displays a frame with the latest prediction drawn over it and
// updates the FPS counter
func (w *Window) Show(f *frame.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	bgra, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC4, f.Pixels())
	if err != nil {
		return fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer bgra.Close()

	img := gocv.NewMat()
	defer img.Close()
	gocv.CvtColor(bgra, &img, gocv.ColorBGRAToBGR)

	w.frameCount++
	now := time.Now()

	// Calculate FPS every second
	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	pred := w.Prediction()
	if pred != nil {
		for _, face := range pred.Faces {
			r := face.Box.Scale(float64(f.Width), float64(f.Height)).Image().Canon()
			gocv.Rectangle(&img, r, boxColor, 2)
			gocv.PutText(&img, fmt.Sprintf("%.0f%%", face.Confidence*100), image.Pt(r.Min.X, r.Min.Y-6),
				gocv.FontHersheyPlain, 1.5, boxColor, 2)
		}
	}

	gocv.PutText(&img, overlayText(w.fps, pred), image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, textColor, 2)

	w.window.IMShow(img)
	return nil
}

// overlayText formats the status line
func overlayText(fps float64, pred *detector.Prediction) string {
	if pred == nil {
		return fmt.Sprintf("FPS: %.1f", fps)
	}
	return fmt.Sprintf("FPS: %.1f  inference: %.1fms  faces: %d", fps, pred.LatencyMs(), len(pred.Faces))
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// IsOpen reports whether the user has not closed the window
func (w *Window) IsOpen() bool {
	return w.window.IsOpen()
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
