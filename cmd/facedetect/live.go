package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/camera"
	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/pipeline"
	"github.com/dudu/facedetect/internal/pixel"
	"github.com/dudu/facedetect/internal/ui"
)

// keyDelayMs is how long each loop pumps window events
const keyDelayMs = 10

// quitKey reports whether key is 'q' or ESC
func quitKey(key int) bool {
	return key == 'q' || key == 27
}

func (a *app) live(c *cli.Context) (err error) {
	p, closeDetector, err := a.openPipeline()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeDetector())
	}()

	device := a.config.Camera
	if c.IsSet(flagCamera) {
		device = c.Int(flagCamera)
	}
	cam, err := camera.NewCapture(device, c.Int(flagFPS), a.logger.Named("camera"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, cam.Close())
	}()

	window := ui.NewWindow("facedetect", cam.Width(), cam.Height())
	defer window.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	a.logger.Info("running, press q to quit")
	loop := &liveLoop{
		source:     cam,
		pipeline:   p,
		display:    window,
		logger:     a.logger,
		retryDelay: 100 * time.Millisecond,
	}
	loop.run(sigChan)
	a.logger.Info("stopped", zap.Float64("fps", window.FPS()))
	return nil
}

type frameSource interface {
	Read() (gocv.Mat, pixel.Image, error)
}

type frameRunner interface {
	Run(img pixel.Image) (pipeline.Result, error)
}

type display interface {
	Show(frame *gocv.Mat, faces []detector.Detection, detection time.Duration)
	WaitKey(delayMs int) int
}

// liveLoop reads, detects and shows frames until a quit key or signal.
type liveLoop struct {
	source     frameSource
	pipeline   frameRunner
	display    display
	logger     *zap.Logger
	retryDelay time.Duration
}

func (l *liveLoop) run(stop <-chan os.Signal) {
	for {
		select {
		case <-stop:
			l.logger.Info("shutting down")
			return
		default:
		}

		frame, img, err := l.source.Read()
		if err != nil {
			l.logger.Debug("skipping frame", zap.Error(err))
			// keep the window responsive while the camera is gone
			if quitKey(l.display.WaitKey(keyDelayMs)) {
				return
			}
			time.Sleep(l.retryDelay)
			continue
		}

		res, err := l.pipeline.Run(img)
		if err != nil {
			l.logger.Warn("detection failed", zap.Error(err))
		}
		l.display.Show(&frame, res.Detections, res.Timing.Detection)
		frame.Close()

		// WaitKey must be called to process window events on macOS
		if quitKey(l.display.WaitKey(keyDelayMs)) {
			l.logger.Info("quitting")
			return
		}
	}
}
