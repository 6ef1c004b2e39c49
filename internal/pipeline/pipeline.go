// Package pipeline turns an arbitrary-size image into detector input, runs
// the detector once and maps its results back to the caller's coordinates.
package pipeline

import (
	"fmt"
	"image"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/pixel"
	"github.com/dudu/facedetect/internal/resize"
	"github.com/dudu/facedetect/internal/scale"
)

// DefaultWorkingMaxDim is the longest side images are scaled to before detection.
const DefaultWorkingMaxDim = 400

var (
	// ErrInvalidImage is returned before any work is done for unusable input.
	ErrInvalidImage = pixel.ErrInvalidImage
	// ErrDetectionFailure wraps any error returned or panic raised by the detector.
	ErrDetectionFailure = errors.New("detection failed")
	// ErrUnscoredDetector is returned by New when MinConfidence is set for a
	// detector whose confidences are always zero.
	ErrUnscoredDetector = errors.New("detector reports no confidence")
)

// Config holds pipeline configuration
type Config struct {
	// WorkingMaxDim is the longest side of the image the detector sees
	WorkingMaxDim int
	// Resampler names the resize filter, see resize.Names
	Resampler string
	// MinConfidence drops detections scoring below it; 0 keeps all
	MinConfidence float64
}

// DefaultConfig returns the configuration used by the command line tool
func DefaultConfig() Config {
	return Config{
		WorkingMaxDim: DefaultWorkingMaxDim,
		Resampler:     resize.Linear,
	}
}

// Timing holds performance timing information
type Timing struct {
	Preprocess  time.Duration
	Resize      time.Duration
	Detection   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}

// Result is the outcome of one Run
type Result struct {
	Detections []detector.Detection
	Scale      scale.Factor
	// Working is the size of the image the detector saw
	Working image.Point
	Timing  Timing
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithResizer overrides the resizer picked from Config.Resampler.
func WithResizer(r resize.Resizer) Option {
	return func(p *Pipeline) {
		p.resizer = r
	}
}

// Pipeline orchestrates face detection. It holds no per-call state, so
// DetectFaces may be called concurrently if the detector allows it.
type Pipeline struct {
	config   Config
	detector detector.Detector
	resizer  resize.Resizer
	logger   *zap.Logger
}

// New creates a pipeline around det. The pipeline does not take ownership
// of det; the caller closes it.
func New(config Config, det detector.Detector, opts ...Option) (*Pipeline, error) {
	if det == nil {
		return nil, errors.New("pipeline needs a detector")
	}
	if config.WorkingMaxDim <= 0 {
		return nil, errors.Wrapf(scale.ErrInvalidDimension, "working max dimension %d", config.WorkingMaxDim)
	}
	if config.MinConfidence > 0 && !detector.Scored(det) {
		return nil, errors.Wrapf(ErrUnscoredDetector, "min confidence %g would drop every face", config.MinConfidence)
	}

	p := &Pipeline{
		config:   config,
		detector: det,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.resizer == nil {
		name := config.Resampler
		if name == "" {
			name = resize.Linear
		}
		r, err := resize.New(name)
		if err != nil {
			return nil, err
		}
		p.resizer = r
	}
	return p, nil
}

// Config returns the configuration the pipeline was built with
func (p *Pipeline) Config() Config {
	return p.config
}

// DetectFaces returns the faces in img, in img's coordinates and in the
// order the detector reported them.
func (p *Pipeline) DetectFaces(img pixel.Image) ([]detector.Detection, error) {
	res, err := p.Run(img)
	if err != nil {
		return nil, err
	}
	return res.Detections, nil
}

// Run is DetectFaces plus the scale, working size and per-stage timing.
func (p *Pipeline) Run(img pixel.Image) (Result, error) {
	totalStart := time.Now()
	var timing Timing

	if err := img.Validate(); err != nil {
		return Result{}, err
	}

	preStart := time.Now()
	s, err := scale.Compute(img.Width, img.Height, p.config.WorkingMaxDim)
	if err != nil {
		return Result{}, errors.Wrap(err, "compute scale")
	}
	workW, workH, err := scale.Working(img.Width, img.Height, s)
	if err != nil {
		return Result{}, errors.Wrap(err, "compute scale")
	}

	flat, err := pixel.Flatten(img)
	if err != nil {
		return Result{}, errors.Wrap(err, "reorder channels")
	}
	ordered, err := pixel.Reorder(flat, p.detector.ChannelOrder())
	if err != nil {
		return Result{}, errors.Wrap(err, "reorder channels")
	}
	timing.Preprocess = time.Since(preStart)

	resizeStart := time.Now()
	working, err := p.resizer.Resize(ordered, workW, workH)
	if err != nil {
		return Result{}, errors.Wrap(err, "resize")
	}
	if working.Width != workW || working.Height != workH {
		return Result{}, errors.Errorf("resize: got %dx%d, want %dx%d", working.Width, working.Height, workW, workH)
	}
	timing.Resize = time.Since(resizeStart)

	var raw []detector.RawDetection
	detectStart := time.Now()
	err = pixel.WithBuffer(working, func(buf *pixel.Buffer) (derr error) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("detector panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				raw, derr = nil, errors.Errorf("detector panicked: %v", r)
			}
		}()
		raw, derr = p.detector.Detect(buf)
		return derr
	})
	timing.Detection = time.Since(detectStart)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDetectionFailure, err)
	}

	postStart := time.Now()
	detections := make([]detector.Detection, 0, len(raw))
	for _, r := range raw {
		d := Rescale(r, s)
		if p.config.MinConfidence > 0 && d.Confidence < p.config.MinConfidence {
			continue
		}
		detections = append(detections, d)
	}
	timing.Postprocess = time.Since(postStart)
	timing.Total = time.Since(totalStart)

	p.logger.Debug("faces detected",
		zap.Stringer("image", img),
		zap.Float64("scale", float64(s)),
		zap.Int("working_width", workW),
		zap.Int("working_height", workH),
		zap.Int("raw", len(raw)),
		zap.Int("faces", len(detections)),
		zap.Duration("detection", timing.Detection),
		zap.Duration("total", timing.Total),
	)

	return Result{
		Detections: detections,
		Scale:      s,
		Working:    image.Pt(workW, workH),
		Timing:     timing,
	}, nil
}

// Rescale maps a working-image detection to original-image coordinates.
// Every spatial field goes through scale.Inverse; confidence is copied.
func Rescale(r detector.RawDetection, s scale.Factor) detector.Detection {
	d := detector.Detection{
		X:          scale.Inverse(r.X, s),
		Y:          scale.Inverse(r.Y, s),
		Width:      scale.Inverse(r.Width, s),
		Height:     scale.Inverse(r.Height, s),
		Confidence: r.Confidence,
		Landmarks:  make([]image.Point, len(r.Landmarks)),
	}
	for i, lm := range r.Landmarks {
		d.Landmarks[i] = image.Pt(scale.Inverse(lm.X, s), scale.Inverse(lm.Y, s))
	}
	return d
}
