// Package cvresize registers the OpenCV area resampler with package resize.
// Import it for side effects where OpenCV is available.
package cvresize

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/dudu/facedetect/internal/pixel"
	"github.com/dudu/facedetect/internal/pixel/cvmat"
	"github.com/dudu/facedetect/internal/resize"
)

// Area is the registered name of the INTER_AREA resampler
const Area = "area"

func init() {
	resize.Register(Area, OpenCV{Interp: gocv.InterpolationArea})
}

// OpenCV resizes with gocv.Resize.
type OpenCV struct {
	Interp gocv.InterpolationFlags
}

func (r OpenCV) Resize(img pixel.Image, width, height int) (pixel.Image, error) {
	if err := resize.CheckTarget(img, width, height); err != nil {
		return pixel.Image{}, err
	}
	src, err := cvmat.ToMat(img)
	if err != nil {
		return pixel.Image{}, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, r.Interp)

	out, err := cvmat.FromMat(dst)
	if err != nil {
		return pixel.Image{}, errors.Wrap(err, "failed to read resized mat")
	}
	// FromMat assumes OpenCV's BGR; the bytes were never reordered
	out.Order = img.Order
	return out, nil
}
