// Package ui shows annotated frames in an OpenCV preview window.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/detector"
)

var (
	boxColor      = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	landmarkColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	textColor     = color.RGBA{R: 0, G: 255, B: 0, A: 255}
)

// FPSCounter averages frames per second over one second windows
type FPSCounter struct {
	lastFrame  time.Time
	frameCount int
	fps        float64
}

// Tick records a frame shown at now and returns the current rate
func (f *FPSCounter) Tick(now time.Time) float64 {
	if f.lastFrame.IsZero() {
		f.lastFrame = now
	}
	f.frameCount++

	elapsed := now.Sub(f.lastFrame)
	if elapsed >= time.Second {
		f.fps = float64(f.frameCount) / elapsed.Seconds()
		f.frameCount = 0
		f.lastFrame = now
	}
	return f.fps
}

// FPS returns the last computed rate
func (f *FPSCounter) FPS() float64 {
	return f.fps
}

// Label formats the caption drawn above a face box
func Label(d detector.Detection) string {
	if d.Confidence == 0 {
		return "face"
	}
	return fmt.Sprintf("%.2f", d.Confidence)
}

// DrawDetections draws each face's box, landmarks and confidence onto frame.
func DrawDetections(frame *gocv.Mat, faces []detector.Detection) {
	for _, d := range faces {
		box := d.Box()
		gocv.Rectangle(frame, box, boxColor, 2)
		for _, lm := range d.Landmarks {
			gocv.Circle(frame, lm, 2, landmarkColor, -1)
		}
		gocv.PutText(frame, Label(d), image.Pt(box.Min.X, box.Min.Y-5),
			gocv.FontHersheyPlain, 1.2, textColor, 1)
	}
}

// Window manages the preview display
type Window struct {
	window *gocv.Window
	name   string
	fps    FPSCounter
}

// NewWindow creates a preview window sized to the frames it will show
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Window{
		window: window,
		name:   name,
	}
}

// Show draws faces and the FPS counter onto frame and displays it.
func (w *Window) Show(frame *gocv.Mat, faces []detector.Detection, detection time.Duration) {
	fps := w.fps.Tick(time.Now())
	DrawDetections(frame, faces)

	status := fmt.Sprintf("FPS: %.1f  faces: %d  detect: %dms", fps, len(faces), detection.Milliseconds())
	gocv.PutText(frame, status, image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, textColor, 2)

	w.window.IMShow(*frame)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps.FPS()
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
