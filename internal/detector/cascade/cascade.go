// Package cascade detects faces with an OpenCV Haar cascade. It reports
// boxes only: no landmarks and a confidence of zero.
package cascade

import (
	"image"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/pixel"
)

// Name is the registry name of this backend
const Name = "cascade"

// DefaultModelPath is the frontal face cascade shipped with OpenCV
const DefaultModelPath = "data/haarcascade_frontalface_alt.xml"

// detectMultiScale parameters
const (
	scaleFactor  = 1.1
	minNeighbors = 10
	scaleImage   = 2 // CASCADE_SCALE_IMAGE
)

var (
	minSize = image.Pt(30, 30)
	maxSize = image.Pt(500, 500)
)

func init() {
	detector.Register(Name, func(opts detector.Options) (detector.Detector, error) {
		return New(opts)
	})
}

// Cascade wraps a gocv.CascadeClassifier. The classifier is not reentrant,
// so Detect calls are serialized.
type Cascade struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
	logger     *zap.Logger
}

// New loads the cascade XML named by opts.ModelPath (DefaultModelPath if empty).
func New(opts detector.Options) (*Cascade, error) {
	path := opts.ModelPath
	if path == "" {
		path = DefaultModelPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, errors.Errorf("unable to open cascade xml file %s", path)
	}
	logger.Info("cascade loaded", zap.String("model", path))

	return &Cascade{classifier: classifier, logger: logger}, nil
}

// Scored is false: detectMultiScale reports no per-face score
func (c *Cascade) Scored() bool {
	return false
}

// ChannelOrder reports OpenCV's native BGR
func (c *Cascade) ChannelOrder() pixel.ChannelOrder {
	return pixel.OrderBGR
}

// Detect runs detectMultiScale on the grayscale buffer.
func (c *Cascade) Detect(buf *pixel.Buffer) ([]detector.RawDetection, error) {
	if buf.Order() != pixel.OrderBGR || buf.Channels() != 3 {
		return nil, errors.Errorf("cascade needs a 3-channel BGR buffer, got %d-channel %s", buf.Channels(), buf.Order())
	}

	src, err := gocv.NewMatFromBytes(buf.Height(), buf.Width(), gocv.MatTypeCV8UC3, buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "failed to wrap buffer")
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	c.mu.Lock()
	rects := c.classifier.DetectMultiScaleWithParams(gray, scaleFactor, minNeighbors, scaleImage, minSize, maxSize)
	c.mu.Unlock()

	return fromRects(rects), nil
}

func fromRects(rects []image.Rectangle) []detector.RawDetection {
	faces := make([]detector.RawDetection, 0, len(rects))
	for _, r := range rects {
		faces = append(faces, detector.RawDetection{
			X:      float64(r.Min.X),
			Y:      float64(r.Min.Y),
			Width:  float64(r.Dx()),
			Height: float64(r.Dy()),
		})
	}
	return faces
}

// Close releases the classifier
func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.Close()
}
