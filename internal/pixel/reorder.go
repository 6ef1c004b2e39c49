package pixel

import "github.com/pkg/errors"

// Reorder returns a copy of img with its channels permuted into target order.
// It is a pure byte permutation: no interpolation and no value changes.
func Reorder(img Image, target ChannelOrder) (Image, error) {
	if img.Channels != 3 {
		return Image{}, errors.Wrapf(ErrUnsupportedChannelCount, "reorder needs 3 channels, got %d", img.Channels)
	}
	if img.Order == OrderOther || target == OrderOther {
		return Image{}, errors.Wrapf(ErrUnsupportedChannelOrder, "%s to %s", img.Order, target)
	}

	out := Image{
		Width:    img.Width,
		Height:   img.Height,
		Channels: 3,
		Order:    target,
		Pix:      make([]byte, len(img.Pix)),
	}
	if img.Order == target {
		copy(out.Pix, img.Pix)
		return out, nil
	}

	// RGB and BGR differ only by swapping the outer channels
	for p := 0; p+2 < len(img.Pix); p += 3 {
		out.Pix[p] = img.Pix[p+2]
		out.Pix[p+1] = img.Pix[p+1]
		out.Pix[p+2] = img.Pix[p]
	}
	return out, nil
}

// Flatten drops every channel past the third, turning RGBA/BGRA into RGB/BGR.
// Three-channel images are returned as is.
func Flatten(img Image) (Image, error) {
	if img.Channels < 3 {
		return Image{}, errors.Wrapf(ErrUnsupportedChannelCount, "flatten needs at least 3 channels, got %d", img.Channels)
	}
	if img.Channels == 3 {
		return img, nil
	}

	out := New(img.Width, img.Height, 3, img.Order)
	n := img.Width * img.Height
	for p := 0; p < n; p++ {
		copy(out.Pix[p*3:p*3+3], img.Pix[p*img.Channels:p*img.Channels+3])
	}
	return out, nil
}
