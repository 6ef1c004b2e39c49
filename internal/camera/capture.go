// Package camera reads webcam frames as pixel images.
package camera

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/pixel"
	"github.com/dudu/facedetect/internal/pixel/cvmat"
)

// ErrClosed is returned by Read after Close
var ErrClosed = errors.New("camera closed")

// Capture manages webcam capture
type Capture struct {
	webcam   *gocv.VideoCapture
	frame    gocv.Mat
	deviceID int
	width    int
	height   int
	mu       sync.Mutex
}

// NewCapture opens a device at 720p and the given frame rate
func NewCapture(deviceID, targetFPS int, logger *zap.Logger) (*Capture, error) {
	return NewCaptureWithResolution(deviceID, targetFPS, 1280, 720, logger)
}

// NewCaptureWithResolution opens a device asking for the given resolution.
// The camera may pick another one; Width and Height report what it chose.
func NewCaptureWithResolution(deviceID, targetFPS, width, height int, logger *zap.Logger) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open camera %d", deviceID)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	webcam.Set(gocv.VideoCaptureFPS, float64(targetFPS))

	c := &Capture{
		webcam:   webcam,
		frame:    gocv.NewMat(),
		deviceID: deviceID,
		width:    int(webcam.Get(gocv.VideoCaptureFrameWidth)),
		height:   int(webcam.Get(gocv.VideoCaptureFrameHeight)),
	}
	if logger != nil {
		logger.Info("camera opened",
			zap.Int("device", deviceID),
			zap.Int("width", c.width),
			zap.Int("height", c.height))
	}
	return c, nil
}

// Read grabs the next frame. The returned Mat is owned by the caller and
// holds BGR pixels; the Image is an independent copy of it.
func (c *Capture) Read() (gocv.Mat, pixel.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return gocv.Mat{}, pixel.Image{}, ErrClosed
	}
	if !c.webcam.Read(&c.frame) || c.frame.Empty() {
		return gocv.Mat{}, pixel.Image{}, errors.Errorf("camera %d returned no frame", c.deviceID)
	}

	img, err := cvmat.FromMat(c.frame)
	if err != nil {
		return gocv.Mat{}, pixel.Image{}, errors.Wrap(err, "convert frame")
	}
	return c.frame.Clone(), img, nil
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// Close releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return nil
	}
	err := c.webcam.Close()
	c.webcam = nil
	return multierr.Combine(err, c.frame.Close())
}
