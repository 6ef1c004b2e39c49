// Package cvmat converts between pixel.Image and gocv.Mat. It is the only
// place the pixel model touches OpenCV.
package cvmat

import (
	"runtime"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/pixel"
)

// FromMat copies an 8-bit OpenCV Mat. OpenCV stores color images as BGR, so
// three and four channel Mats come back with OrderBGR.
func FromMat(m gocv.Mat) (pixel.Image, error) {
	if m.Empty() {
		return pixel.Image{}, errors.Wrap(pixel.ErrInvalidImage, "empty mat")
	}

	var channels int
	switch m.Type() {
	case gocv.MatTypeCV8UC3:
		channels = 3
	case gocv.MatTypeCV8UC4:
		channels = 4
	default:
		return pixel.Image{}, errors.Wrapf(pixel.ErrUnsupportedChannelCount, "mat type %v", m.Type())
	}

	// ROI views are not continuous; ToBytes needs packed rows
	if !m.IsContinuous() {
		packed := m.Clone()
		defer packed.Close()
		m = packed
	}

	return pixel.Image{
		Width:    m.Cols(),
		Height:   m.Rows(),
		Channels: channels,
		Order:    pixel.OrderBGR,
		Pix:      m.ToBytes(),
	}, nil
}

// ToMat copies a 3 or 4 channel image into a new Mat. The caller owns the Mat
// and must Close it.
func ToMat(img pixel.Image) (gocv.Mat, error) {
	if err := img.Validate(); err != nil {
		return gocv.NewMat(), err
	}

	mt := gocv.MatTypeCV8UC3
	switch img.Channels {
	case 3:
	case 4:
		mt = gocv.MatTypeCV8UC4
	default:
		return gocv.NewMat(), errors.Wrapf(pixel.ErrUnsupportedChannelCount, "%d channels", img.Channels)
	}

	// NewMatFromBytes wraps the Go slice without copying, so hand back a clone
	view, err := gocv.NewMatFromBytes(img.Height, img.Width, mt, img.Pix)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "failed to create mat")
	}
	defer view.Close()
	out := view.Clone()
	runtime.KeepAlive(img.Pix)
	return out, nil
}
