// Package pixel holds the packed 8-bit image representation shared by the
// resize, detector and pipeline packages, plus channel reordering and the
// pinned buffer handed to native detectors.
package pixel

import (
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidImage is returned for images with non-positive dimensions,
	// fewer than three channels or a pixel slice of the wrong length.
	ErrInvalidImage = errors.New("invalid image")
	// ErrUnsupportedChannelCount is returned when an operation needs exactly three channels.
	ErrUnsupportedChannelCount = errors.New("unsupported channel count")
	// ErrUnsupportedChannelOrder is returned when a channel order cannot be permuted.
	ErrUnsupportedChannelOrder = errors.New("unsupported channel order")
)

// ChannelOrder names the order of the first three interleaved channels
type ChannelOrder int

const (
	OrderOther ChannelOrder = iota
	OrderRGB
	OrderBGR
)

func (o ChannelOrder) String() string {
	switch o {
	case OrderRGB:
		return "RGB"
	case OrderBGR:
		return "BGR"
	default:
		return "other"
	}
}

// Image is a packed, row-major, interleaved 8-bit image with no row padding.
// Operations never mutate an Image; they return a new one.
type Image struct {
	Width    int
	Height   int
	Channels int
	Order    ChannelOrder
	Pix      []byte
}

// New allocates a zeroed image.
func New(width, height, channels int, order ChannelOrder) Image {
	return Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Order:    order,
		Pix:      make([]byte, width*height*channels),
	}
}

// Stride returns the number of bytes per row
func (i Image) Stride() int {
	return i.Width * i.Channels
}

// Bounds returns the image rectangle anchored at the origin
func (i Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.Width, i.Height)
}

// Validate checks the invariants the pipeline relies on.
func (i Image) Validate() error {
	if i.Width <= 0 || i.Height <= 0 {
		return errors.Wrapf(ErrInvalidImage, "dimensions %dx%d", i.Width, i.Height)
	}
	if i.Channels < 3 {
		return errors.Wrapf(ErrInvalidImage, "%d channels", i.Channels)
	}
	if want := i.Width * i.Height * i.Channels; len(i.Pix) != want {
		return errors.Wrapf(ErrInvalidImage, "pixel data has %d bytes, want %d", len(i.Pix), want)
	}
	return nil
}

func (i Image) String() string {
	return fmt.Sprintf("%dx%dx%d %s", i.Width, i.Height, i.Channels, i.Order)
}

// FromImage converts a decoded standard library image into a 3-channel RGB Image.
func FromImage(img image.Image) Image {
	return fromStd(img, OrderRGB)
}

// fromStd reads R, G and B positionally into channels 0, 1 and 2 and labels
// the result with order. Alpha is discarded.
func fromStd(img image.Image, order ChannelOrder) Image {
	b := img.Bounds()
	out := New(b.Dx(), b.Dy(), 3, order)

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < out.Height; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+out.Width*4]
			dst := out.Pix[y*out.Stride():]
			for x := 0; x < out.Width; x++ {
				dst[x*3] = row[x*4]
				dst[x*3+1] = row[x*4+1]
				dst[x*3+2] = row[x*4+2]
			}
		}
	case *image.RGBA:
		for y := 0; y < out.Height; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+out.Width*4]
			dst := out.Pix[y*out.Stride():]
			for x := 0; x < out.Width; x++ {
				dst[x*3] = row[x*4]
				dst[x*3+1] = row[x*4+1]
				dst[x*3+2] = row[x*4+2]
			}
		}
	default:
		k := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				out.Pix[k] = c.R
				out.Pix[k+1] = c.G
				out.Pix[k+2] = c.B
				k += 3
			}
		}
	}
	return out
}

// ToNRGBA copies channels 0, 1 and 2 positionally into R, G and B of an opaque
// NRGBA image. The channel order is not interpreted, so a BGR image comes back
// with blue in the R slot; FromNRGBA with the same order reverses it exactly.
func (i Image) ToNRGBA() (*image.NRGBA, error) {
	if i.Channels < 3 {
		return nil, errors.Wrapf(ErrUnsupportedChannelCount, "%d channels", i.Channels)
	}
	out := image.NewNRGBA(i.Bounds())
	n := i.Width * i.Height
	for p := 0; p < n; p++ {
		s := p * i.Channels
		d := p * 4
		out.Pix[d] = i.Pix[s]
		out.Pix[d+1] = i.Pix[s+1]
		out.Pix[d+2] = i.Pix[s+2]
		out.Pix[d+3] = 0xff
	}
	return out, nil
}

// FromNRGBA is the positional inverse of ToNRGBA.
func FromNRGBA(img image.Image, order ChannelOrder) Image {
	return fromStd(img, order)
}
