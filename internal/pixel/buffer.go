package pixel

import (
	"runtime"
	"unsafe"
)

// Buffer is an exclusively owned, pinned copy of an image's packed pixels.
// While it is held, Pointer may be passed across a cgo call; the memory is
// neither moved nor collected until Release.
type Buffer struct {
	pix      []byte
	width    int
	height   int
	channels int
	order    ChannelOrder
	pinner   runtime.Pinner
}

// Acquire copies img into a new pinned buffer. The caller must call Release,
// or use WithBuffer which does so on every path.
func Acquire(img Image) (*Buffer, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	b := &Buffer{
		pix:      make([]byte, len(img.Pix)),
		width:    img.Width,
		height:   img.Height,
		channels: img.Channels,
		order:    img.Order,
	}
	copy(b.pix, img.Pix)

	// Pin Go memory to prevent GC from moving it during C call
	b.pinner.Pin(&b.pix[0])
	return b, nil
}

// WithBuffer acquires a buffer for img, runs fn and releases the buffer
// afterwards, including when fn fails or panics.
func WithBuffer(img Image, fn func(*Buffer) error) error {
	b, err := Acquire(img)
	if err != nil {
		return err
	}
	defer b.Release()
	return fn(b)
}

// Release unpins and drops the pixel memory. Calling it more than once is safe.
func (b *Buffer) Release() {
	if b.pix == nil {
		return
	}
	b.pinner.Unpin()
	b.pix = nil
}

// Released reports whether Release has been called
func (b *Buffer) Released() bool {
	return b.pix == nil
}

// Pointer returns the address of the first byte, or nil once released.
func (b *Buffer) Pointer() unsafe.Pointer {
	if b.pix == nil {
		return nil
	}
	return unsafe.Pointer(&b.pix[0])
}

// Bytes exposes the packed pixels. The slice must not be retained past Release.
func (b *Buffer) Bytes() []byte {
	return b.pix
}

// Len returns the buffer length in bytes
func (b *Buffer) Len() int {
	return len(b.pix)
}

func (b *Buffer) Width() int {
	return b.width
}

func (b *Buffer) Height() int {
	return b.height
}

func (b *Buffer) Channels() int {
	return b.channels
}

// Stride returns bytes per row; rows are never padded.
func (b *Buffer) Stride() int {
	return b.width * b.channels
}

func (b *Buffer) Order() ChannelOrder {
	return b.order
}
