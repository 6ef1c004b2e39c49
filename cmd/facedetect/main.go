// Package main is the facedetect command line tool.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dudu/facedetect/internal/config"
	"github.com/dudu/facedetect/internal/detector"
	_ "github.com/dudu/facedetect/internal/detector/cascade"
	_ "github.com/dudu/facedetect/internal/detector/libfacedetection"
	_ "github.com/dudu/facedetect/internal/detector/scrfd"
	"github.com/dudu/facedetect/internal/logging"
	"github.com/dudu/facedetect/internal/pipeline"
	"github.com/dudu/facedetect/internal/resize"
	_ "github.com/dudu/facedetect/internal/resize/cvresize"
)

func init() {
	// OpenCV's highgui needs the main OS thread on macOS
	runtime.LockOSThread()
}

const (
	flagEnvFile       = "env-file"
	flagBackend       = "backend"
	flagModel         = "model"
	flagRuntime       = "ort-lib"
	flagWorkingMaxDim = "working-max-dim"
	flagResampler     = "resampler"
	flagMinConfidence = "min-confidence"
	flagInputSize     = "input-size"
	flagConfThreshold = "conf-threshold"
	flagNMSThreshold  = "nms-threshold"
	flagLogLevel      = "log-level"
	flagLogJSON       = "log-json"
	flagCamera        = "camera"
	flagFPS           = "fps"
	flagAnnotate      = "annotate"
)

// app carries what Before builds for the subcommands
type app struct {
	config config.Config
	logger *zap.Logger
}

func newApp() *app {
	return &app{logger: zap.NewNop()}
}

func main() {
	a := newApp()
	if err := a.cli().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:  "facedetect",
		Usage: "find faces in images and camera frames",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagEnvFile, Usage: "load settings from `FILE` (default ./.env if present)"},
			&cli.StringFlag{Name: flagBackend, Aliases: []string{"b"}, Usage: "detector backend, see the backends command"},
			&cli.StringFlag{Name: flagModel, Aliases: []string{"m"}, Usage: "model file for the backend"},
			&cli.StringFlag{Name: flagRuntime, Usage: "ONNX Runtime shared library"},
			&cli.IntFlag{Name: flagWorkingMaxDim, Usage: "longest side of the image the detector sees"},
			&cli.StringFlag{Name: flagResampler, Usage: fmt.Sprintf("resize filter %v", resize.Names())},
			&cli.Float64Flag{Name: flagMinConfidence, Usage: "drop faces scoring below this"},
			&cli.IntFlag{Name: flagInputSize, Usage: "model input size for network backends"},
			&cli.Float64Flag{Name: flagConfThreshold, Usage: "backend score threshold"},
			&cli.Float64Flag{Name: flagNMSThreshold, Usage: "backend NMS IoU threshold"},
			&cli.StringFlag{Name: flagLogLevel, Usage: "debug, info, warn or error"},
			&cli.BoolFlag{Name: flagLogJSON, Usage: "log JSON instead of console lines"},
		},
		Before: a.before,
		After: func(*cli.Context) error {
			_ = a.logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "detect",
				Usage:     "detect faces in image files and print them as JSON",
				ArgsUsage: "<image>...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagAnnotate, Usage: "write annotated copies into `DIR`"},
				},
				Action: a.detect,
			},
			{
				Name:  "live",
				Usage: "detect faces in webcam frames and show them in a window",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: flagCamera, Aliases: []string{"c"}, Usage: "camera device index"},
					&cli.IntFlag{Name: flagFPS, Value: 30, Usage: "target frames per second"},
				},
				Action: a.live,
			},
			{
				Name:   "backends",
				Usage:  "list the detector backends compiled into this binary",
				Action: a.backends,
			},
			{
				Name:      "model-info",
				Usage:     "print the inputs and outputs of an ONNX model",
				ArgsUsage: "<model.onnx>",
				Action:    a.modelInfo,
			},
		},
	}
}

// before loads the environment config, applies flags and builds the logger.
func (a *app) before(c *cli.Context) error {
	var (
		cfg config.Config
		err error
	)
	if f := c.String(flagEnvFile); f != "" {
		cfg, err = config.Load(f)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	applyFlags(c, &cfg)
	cfg.Normalize()
	a.config = cfg

	logger, err := logging.New("facedetect", cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// applyFlags overrides cfg with every flag set on the command line
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(flagBackend) {
		cfg.Backend = c.String(flagBackend)
	}
	if c.IsSet(flagModel) {
		cfg.ModelPath = c.String(flagModel)
	}
	if c.IsSet(flagRuntime) {
		cfg.RuntimeLibrary = c.String(flagRuntime)
	}
	if c.IsSet(flagWorkingMaxDim) {
		cfg.WorkingMaxDim = c.Int(flagWorkingMaxDim)
	}
	if c.IsSet(flagResampler) {
		cfg.Resampler = c.String(flagResampler)
	}
	if c.IsSet(flagMinConfidence) {
		cfg.MinConfidence = c.Float64(flagMinConfidence)
	}
	if c.IsSet(flagInputSize) {
		cfg.InputSize = c.Int(flagInputSize)
	}
	if c.IsSet(flagConfThreshold) {
		cfg.ConfThreshold = c.Float64(flagConfThreshold)
	}
	if c.IsSet(flagNMSThreshold) {
		cfg.NMSThreshold = c.Float64(flagNMSThreshold)
	}
	if c.IsSet(flagLogLevel) {
		cfg.LogLevel = c.String(flagLogLevel)
	}
	if c.IsSet(flagLogJSON) {
		cfg.LogJSON = c.Bool(flagLogJSON)
	}
}

// openPipeline validates the config and opens the configured backend. The
// returned close func releases the detector.
func (a *app) openPipeline() (*pipeline.Pipeline, func() error, error) {
	if err := a.config.Validate(); err != nil {
		return nil, nil, err
	}

	det, err := detector.Open(a.config.Backend, a.config.Detector(a.logger.Named(a.config.Backend)))
	if err != nil {
		return nil, nil, err
	}

	p, err := pipeline.New(a.config.Pipeline(), det, pipeline.WithLogger(a.logger.Named("pipeline")))
	if err != nil {
		return nil, nil, multierr.Combine(err, det.Close())
	}
	pc := p.Config()
	a.logger.Info("pipeline ready",
		zap.String("backend", a.config.Backend),
		zap.Int("working_max_dim", pc.WorkingMaxDim),
		zap.String("resampler", pc.Resampler),
		zap.Float64("min_confidence", pc.MinConfidence))
	return p, det.Close, nil
}

func (a *app) backends(c *cli.Context) error {
	names := detector.Names()
	if len(names) == 0 {
		return errors.New("no detector backends compiled in")
	}
	for _, name := range names {
		marker := " "
		if name == a.config.Backend {
			marker = "*"
		}
		fmt.Fprintf(c.App.Writer, "%s %s\n", marker, name)
	}
	return nil
}
