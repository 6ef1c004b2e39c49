// Package scale computes the uniform factor that fits an image into the
// detector's working size and maps coordinates in both directions.
//
// Both directions round half away from zero (math.Round). The resize step
// uses Working, so the dimensions reported to a detector always equal the
// dimensions of the image it was given.
package scale

import (
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidDimension is returned for non-positive image or target dimensions.
	ErrInvalidDimension = errors.New("invalid dimension")
	// ErrDegenerateScale is returned when a working dimension would round to zero.
	ErrDegenerateScale = errors.New("degenerate scale")
)

// Factor maps original pixels to working pixels: working = original * Factor.
type Factor float64

// Compute returns target / max(width, height).
func Compute(width, height, target int) (Factor, error) {
	if width <= 0 || height <= 0 {
		return 0, errors.Wrapf(ErrInvalidDimension, "image %dx%d", width, height)
	}
	if target <= 0 {
		return 0, errors.Wrapf(ErrInvalidDimension, "target %d", target)
	}
	return Factor(float64(target) / float64(max(width, height))), nil
}

// Forward maps an original dimension to working pixels.
func Forward(dim int, s Factor) int {
	return int(math.Round(float64(dim) * float64(s)))
}

// Inverse maps a working coordinate or length back to original pixels.
func Inverse(v float64, s Factor) int {
	return int(math.Round(v / float64(s)))
}

// Working returns the resized dimensions for an image scaled by s.
func Working(width, height int, s Factor) (int, int, error) {
	if s <= 0 || math.IsInf(float64(s), 0) || math.IsNaN(float64(s)) {
		return 0, 0, errors.Wrapf(ErrDegenerateScale, "factor %v", float64(s))
	}
	w, h := Forward(width, s), Forward(height, s)
	if w < 1 || h < 1 {
		return 0, 0, errors.Wrapf(ErrDegenerateScale, "%dx%d scaled by %v gives %dx%d", width, height, float64(s), w, h)
	}
	return w, h, nil
}
