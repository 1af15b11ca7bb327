// Package screen captures display regions into bitmaps.
package screen

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"

	"go.uber.org/zap"

	"deskpilot/internal/bitmap"
)

const (
	bitsPerPixel  = 32
	bytesPerPixel = 4
)

// ErrEmptyRegion is returned for captures with no pixels.
var ErrEmptyRegion = errors.New("screen: empty capture region")

// Grabber reads pixels from the display. A zero rect means the whole
// primary display.
type Grabber interface {
	Grab(rect image.Rectangle) (image.Image, error)
}

// Capturer copies grabbed images into bitmaps.
type Capturer struct {
	grabber Grabber
	alloc   bitmap.Allocator
	logger  *zap.Logger
}

// NewCapturer creates a Capturer. Buffers larger than maxBytes are refused.
func NewCapturer(g Grabber, maxBytes int, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		grabber: g,
		alloc:   bitmap.HeapAllocator{Limit: maxBytes},
		logger:  logger,
	}
}

// Capture grabs rect and returns it as a 32-bit RGBA bitmap owned by the
// caller.
func (c *Capturer) Capture(rect image.Rectangle) (*bitmap.Bitmap, error) {
	if rect != (image.Rectangle{}) && rect.Empty() {
		return nil, fmt.Errorf("%w: %v", ErrEmptyRegion, rect)
	}
	img, err := c.grabber.Grab(rect)
	if err != nil {
		return nil, fmt.Errorf("capture %v: %w", rect, err)
	}
	bmp, err := FromImage(c.alloc, img)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("captured region",
		zap.Int("x", rect.Min.X), zap.Int("y", rect.Min.Y),
		zap.Int("width", bmp.Width()), zap.Int("height", bmp.Height()))
	return bmp, nil
}

// FromImage copies img into a tightly packed RGBA bitmap.
func FromImage(alloc bitmap.Allocator, img image.Image) (*bitmap.Bitmap, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: %v", ErrEmptyRegion, b)
	}
	stride := b.Dx() * bytesPerPixel
	bmp, err := bitmap.Alloc(alloc, b.Dx(), b.Dy(), stride, bitsPerPixel, bytesPerPixel)
	if err != nil {
		return nil, err
	}
	dst := &image.RGBA{Pix: bmp.Buffer(), Stride: stride, Rect: image.Rect(0, 0, b.Dx(), b.Dy())}
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return bmp, nil
}

// ToImage copies a 32-bit RGBA bitmap into an image.RGBA.
func ToImage(bmp *bitmap.Bitmap) (*image.RGBA, error) {
	if bmp.Destroyed() {
		return nil, bitmap.ErrDestroyed
	}
	if bmp.BytesPerPixel() != bytesPerPixel || !bmp.HasBuffer() {
		return nil, fmt.Errorf("screen: need a %d-byte-per-pixel bitmap with pixel data", bytesPerPixel)
	}
	if err := bmp.Validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, bmp.Width(), bmp.Height()))
	row := bmp.Width() * bytesPerPixel
	src := bmp.Buffer()
	for y := 0; y < bmp.Height(); y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+row], src[y*bmp.Bytewidth():y*bmp.Bytewidth()+row])
	}
	return img, nil
}

// EncodePNG writes bmp to w as PNG.
func EncodePNG(w io.Writer, bmp *bitmap.Bitmap) error {
	img, err := ToImage(bmp)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
