// Package resize scales pixel.Images to exact target dimensions with a
// non-nearest-neighbor filter. Callers compute the target with
// scale.Working so detector and pipeline agree on the working size.
package resize

import (
	"slices"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	nfnt "github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/dudu/facedetect/internal/pixel"
)

// Resizer scales an image to exactly width x height, keeping channel order.
type Resizer interface {
	Resize(img pixel.Image, width, height int) (pixel.Image, error)
}

// Built-in resampler names accepted by New.
const (
	Linear     = "linear"
	CatmullRom = "catmullrom"
	Lanczos    = "lanczos"
	Box        = "box"
	Bilinear   = "bilinear"
	Bicubic    = "bicubic"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Resizer{}
)

// Register adds a resizer backed by an optional library, such as the
// OpenCV one in package cvresize. It panics on duplicates, since
// registration happens in init.
func Register(name string, r Resizer) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[name]; ok || isBuiltin(name) {
		panic("resize: resampler registered twice: " + name)
	}
	registry[name] = r
}

func builtins() []string {
	return []string{Linear, CatmullRom, Lanczos, Box, Bilinear, Bicubic}
}

func isBuiltin(name string) bool {
	return slices.Contains(builtins(), name)
}

// Names lists every resampler New accepts: the built-ins first, then the
// registered ones sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	extra := make([]string, 0, len(registry))
	for name := range registry {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	return append(builtins(), extra...)
}

// New returns the resizer named name.
func New(name string) (Resizer, error) {
	registryMu.RLock()
	r, ok := registry[name]
	registryMu.RUnlock()
	if ok {
		return r, nil
	}

	switch name {
	case Linear:
		return Imaging{Filter: imaging.Linear}, nil
	case CatmullRom:
		return Imaging{Filter: imaging.CatmullRom}, nil
	case Lanczos:
		return Imaging{Filter: imaging.Lanczos}, nil
	case Box:
		return Imaging{Filter: imaging.Box}, nil
	case Bilinear:
		return NFNT{Interp: nfnt.Bilinear}, nil
	case Bicubic:
		return NFNT{Interp: nfnt.Bicubic}, nil
	default:
		return nil, errors.Errorf("unknown resampler %q", name)
	}
}

// CheckTarget validates the source image and the requested size
func CheckTarget(img pixel.Image, width, height int) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid target size %dx%d", width, height)
	}
	return nil
}

// Imaging resizes with github.com/disintegration/imaging.
type Imaging struct {
	Filter imaging.ResampleFilter
}

func (r Imaging) Resize(img pixel.Image, width, height int) (pixel.Image, error) {
	if err := CheckTarget(img, width, height); err != nil {
		return pixel.Image{}, err
	}
	src, err := flat(img)
	if err != nil {
		return pixel.Image{}, err
	}
	n, err := src.ToNRGBA()
	if err != nil {
		return pixel.Image{}, err
	}
	return pixel.FromNRGBA(imaging.Resize(n, width, height, r.Filter), src.Order), nil
}

// NFNT resizes with github.com/nfnt/resize.
type NFNT struct {
	Interp nfnt.InterpolationFunction
}

func (r NFNT) Resize(img pixel.Image, width, height int) (pixel.Image, error) {
	if err := CheckTarget(img, width, height); err != nil {
		return pixel.Image{}, err
	}
	src, err := flat(img)
	if err != nil {
		return pixel.Image{}, err
	}
	n, err := src.ToNRGBA()
	if err != nil {
		return pixel.Image{}, err
	}
	return pixel.FromNRGBA(nfnt.Resize(uint(width), uint(height), n, r.Interp), src.Order), nil
}

// flat drops alpha so the positional NRGBA round trip is lossless
func flat(img pixel.Image) (pixel.Image, error) {
	if img.Channels == 3 {
		return img, nil
	}
	return pixel.Flatten(img)
}
