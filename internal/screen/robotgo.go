package screen

import (
	"errors"
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
)

// ErrCaptureFailed is returned when the display could not be read.
var ErrCaptureFailed = errors.New("screen: display capture failed")

// Swapped in tests.
var (
	captureImg func(args ...int) image.Image = robotgo.CaptureImg
	screenSize func() (int, int)             = robotgo.GetScreenSize
)

// DisplayGrabber captures the primary display through robotgo.
type DisplayGrabber struct{}

func (DisplayGrabber) Grab(rect image.Rectangle) (image.Image, error) {
	if rect == (image.Rectangle{}) {
		w, h := screenSize()
		rect = image.Rect(0, 0, w, h)
	}
	img := captureImg(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy())
	if img == nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, rect)
	}
	return img, nil
}
