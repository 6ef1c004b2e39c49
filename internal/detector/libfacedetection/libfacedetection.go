//go:build libfacedetection

package libfacedetection

import (
	"runtime/debug"

	"github.com/carck/libfacedetection-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dudu/facedetect/internal/detector"
	"github.com/dudu/facedetect/internal/pixel"
)

func init() {
	detector.Register(Name, func(opts detector.Options) (detector.Detector, error) {
		return New(opts), nil
	})
}

// Detector calls facedetect_cnn. It keeps no state between calls.
type Detector struct {
	logger *zap.Logger
}

// New creates a libfacedetection detector
func New(opts detector.Options) *Detector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{logger: logger}
}

// ChannelOrder reports BGR: DetectFaceRGB hands its bytes straight to
// facedetect_cnn, which was trained on BGR input.
func (d *Detector) ChannelOrder() pixel.ChannelOrder {
	return pixel.OrderBGR
}

// Detect runs facedetect_cnn on the pinned buffer.
func (d *Detector) Detect(buf *pixel.Buffer) (faces []detector.RawDetection, err error) {
	if buf.Order() != pixel.OrderBGR || buf.Channels() != 3 {
		return nil, errors.Errorf("libfacedetection needs a 3-channel BGR buffer, got %d-channel %s", buf.Channels(), buf.Order())
	}
	if buf.Released() {
		return nil, errors.New("buffer already released")
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("facedetect_cnn panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			faces, err = nil, errors.Errorf("facedetect_cnn panicked: %v", r)
		}
	}()

	found := libfacedetection.DetectFaceRGB(buf.Bytes(), buf.Width(), buf.Height(), buf.Stride())

	results := make([]face, 0, len(found))
	for _, f := range found {
		r := face{
			X:          int(f.X),
			Y:          int(f.Y),
			W:          int(f.W),
			H:          int(f.H),
			Confidence: int(f.Confidence),
		}
		for k := 0; k < len(r.Landmarks) && k < len(f.Landmarks); k++ {
			r.Landmarks[k] = int(f.Landmarks[k])
		}
		results = append(results, r)
	}

	faces = decodeResults(results)
	d.logger.Debug("facedetect_cnn", zap.Int("faces", len(faces)))
	return faces, nil
}

// Close is a no-op; the library holds no per-detector state
func (d *Detector) Close() error {
	return nil
}
