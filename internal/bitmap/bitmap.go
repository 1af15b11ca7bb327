// Package bitmap provides the in-memory pixel buffer used for screen captures.
package bitmap

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation is returned when a pixel buffer cannot be allocated.
	ErrAllocation = errors.New("bitmap: allocation failed")
	// ErrDestroyed is returned when operating on a bitmap after Destroy.
	ErrDestroyed = errors.New("bitmap: already destroyed")
	// ErrOutOfBounds is returned when a region does not fit inside the bitmap.
	ErrOutOfBounds = errors.New("bitmap: region out of bounds")
	// ErrGeometry is returned by Validate when the buffer and geometry disagree.
	ErrGeometry = errors.New("bitmap: inconsistent geometry")
)

// Bitmap is a raw pixel buffer plus its geometry. The buffer is exclusively
// owned by the Bitmap and released through its Allocator on Destroy.
type Bitmap struct {
	buf           []byte
	width         int
	height        int
	bytewidth     int
	bitsPerPixel  uint8
	bytesPerPixel uint8

	alloc     Allocator
	destroyed bool
}

// New creates a bitmap that takes ownership of *buf. The caller's slice is
// set to nil. buf may be nil or point to a nil slice to create a bitmap with
// no pixel data. Geometry is not validated.
func New(buf *[]byte, width, height, bytewidth int, bitsPerPixel, bytesPerPixel uint8) *Bitmap {
	return NewWithAllocator(DefaultAllocator, buf, width, height, bytewidth, bitsPerPixel, bytesPerPixel)
}

// NewWithAllocator is New with an explicit allocator, used for duplication
// and release of the owned buffer.
func NewWithAllocator(alloc Allocator, buf *[]byte, width, height, bytewidth int, bitsPerPixel, bytesPerPixel uint8) *Bitmap {
	if alloc == nil {
		alloc = DefaultAllocator
	}
	b := &Bitmap{
		width:         width,
		height:        height,
		bytewidth:     bytewidth,
		bitsPerPixel:  bitsPerPixel,
		bytesPerPixel: bytesPerPixel,
		alloc:         alloc,
	}
	if buf != nil {
		b.buf = *buf
		*buf = nil
	}
	return b
}

// Alloc creates a zeroed bitmap of the given geometry using alloc.
func Alloc(alloc Allocator, width, height, bytewidth int, bitsPerPixel, bytesPerPixel uint8) (*Bitmap, error) {
	if alloc == nil {
		alloc = DefaultAllocator
	}
	size, ok := bufferSize(height, bytewidth)
	if !ok {
		return nil, fmt.Errorf("%w: %dx%d stride %d", ErrAllocation, width, height, bytewidth)
	}
	buf, err := alloc.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	return NewWithAllocator(alloc, &buf, width, height, bytewidth, bitsPerPixel, bytesPerPixel), nil
}

func (b *Bitmap) Width() int           { return b.width }
func (b *Bitmap) Height() int          { return b.height }
func (b *Bitmap) Bytewidth() int       { return b.bytewidth }
func (b *Bitmap) BitsPerPixel() uint8  { return b.bitsPerPixel }
func (b *Bitmap) BytesPerPixel() uint8 { return b.bytesPerPixel }

// Buffer returns the owned pixel slice. Writes through it modify the bitmap.
// It returns nil after Destroy.
func (b *Bitmap) Buffer() []byte { return b.buf }

// HasBuffer reports whether the bitmap holds pixel data.
func (b *Bitmap) HasBuffer() bool { return b.buf != nil }

// Destroyed reports whether Destroy has been called.
func (b *Bitmap) Destroyed() bool { return b.destroyed }

// Validate checks len(buffer) == height*bytewidth and that the stride can
// hold a full row of pixels. A bitmap with no buffer only has its stride checked.
func (b *Bitmap) Validate() error {
	if b.destroyed {
		return ErrDestroyed
	}
	if b.width < 0 || b.height < 0 {
		return fmt.Errorf("%w: negative size %dx%d", ErrGeometry, b.width, b.height)
	}
	if b.bytewidth < b.width*int(b.bytesPerPixel) {
		return fmt.Errorf("%w: stride %d < %d*%d", ErrGeometry, b.bytewidth, b.width, b.bytesPerPixel)
	}
	if b.buf != nil && len(b.buf) != b.height*b.bytewidth {
		return fmt.Errorf("%w: buffer %d bytes, want %d", ErrGeometry, len(b.buf), b.height*b.bytewidth)
	}
	return nil
}

// Destroy releases the pixel buffer. Calling it again returns ErrDestroyed
// and releases nothing.
func (b *Bitmap) Destroy() error {
	if b.destroyed {
		return ErrDestroyed
	}
	b.destroyed = true
	if b.buf != nil {
		b.alloc.Free(b.buf)
		b.buf = nil
	}
	return nil
}

// Duplicate returns a deep copy with an independently allocated buffer.
// On allocation failure it returns (nil, ErrAllocation).
func (b *Bitmap) Duplicate() (*Bitmap, error) {
	if b.destroyed {
		return nil, ErrDestroyed
	}
	if b.buf == nil {
		return NewWithAllocator(b.alloc, nil, b.width, b.height, b.bytewidth, b.bitsPerPixel, b.bytesPerPixel), nil
	}
	size, ok := bufferSize(b.height, b.bytewidth)
	if !ok {
		return nil, ErrAllocation
	}
	buf, err := b.alloc.Alloc(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	copy(buf, b.buf)
	return NewWithAllocator(b.alloc, &buf, b.width, b.height, b.bytewidth, b.bitsPerPixel, b.bytesPerPixel), nil
}

// Region copies the w x h rectangle at (x, y) into a new tightly packed bitmap.
// Bitmaps whose geometry does not match their buffer are rejected.
func (b *Bitmap) Region(x, y, w, h int) (*Bitmap, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if x < 0 || y < 0 || w < 0 || h < 0 || x+w > b.width || y+h > b.height {
		return nil, fmt.Errorf("%w: %dx%d+%d+%d in %dx%d", ErrOutOfBounds, w, h, x, y, b.width, b.height)
	}
	bpp := int(b.bytesPerPixel)
	stride := w * bpp
	if b.buf == nil {
		return NewWithAllocator(b.alloc, nil, w, h, stride, b.bitsPerPixel, b.bytesPerPixel), nil
	}
	dst, err := Alloc(b.alloc, w, h, stride, b.bitsPerPixel, b.bytesPerPixel)
	if err != nil {
		return nil, err
	}
	for row := 0; row < h; row++ {
		src := (y+row)*b.bytewidth + x*bpp
		copy(dst.buf[row*stride:(row+1)*stride], b.buf[src:src+stride])
	}
	return dst, nil
}

// Equal reports whether both bitmaps have the same size and pixel format and
// identical visible pixels. Stride padding is ignored. A bitmap that fails
// Validate is equal to nothing but itself.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if b == o {
		return true
	}
	if o == nil || b.Validate() != nil || o.Validate() != nil {
		return false
	}
	if b.width != o.width || b.height != o.height ||
		b.bitsPerPixel != o.bitsPerPixel || b.bytesPerPixel != o.bytesPerPixel {
		return false
	}
	if (b.buf == nil) != (o.buf == nil) {
		return false
	}
	if b.buf == nil {
		return true
	}
	row := b.width * int(b.bytesPerPixel)
	for y := 0; y < b.height; y++ {
		p := b.buf[y*b.bytewidth : y*b.bytewidth+row]
		q := o.buf[y*o.bytewidth : y*o.bytewidth+row]
		if string(p) != string(q) {
			return false
		}
	}
	return true
}

// PixelOffset returns the byte offset of (x, y) in the buffer.
func (b *Bitmap) PixelOffset(x, y int) int {
	return y*b.bytewidth + x*int(b.bytesPerPixel)
}

func bufferSize(height, bytewidth int) (int, bool) {
	if height < 0 || bytewidth < 0 {
		return 0, false
	}
	if bytewidth != 0 && height > maxInt/bytewidth {
		return 0, false
	}
	return height * bytewidth, true
}

const maxInt = int(^uint(0) >> 1)
