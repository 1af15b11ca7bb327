package screen

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubDisplay(t *testing.T, w, h int, capture func(args ...int) image.Image) *[]int {
	t.Helper()
	origCapture, origSize := captureImg, screenSize
	t.Cleanup(func() { captureImg, screenSize = origCapture, origSize })

	var got []int
	screenSize = func() (int, int) { return w, h }
	captureImg = func(args ...int) image.Image {
		got = append([]int(nil), args...)
		return capture(args...)
	}
	return &got
}

func TestDisplayGrabberWholeScreen(t *testing.T) {
	args := stubDisplay(t, 32, 18, func(a ...int) image.Image {
		return image.NewRGBA(image.Rect(0, 0, a[2], a[3]))
	})

	img, err := DisplayGrabber{}.Grab(image.Rectangle{})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 18), img.Bounds())
	assert.Equal(t, []int{0, 0, 32, 18}, *args)
}

func TestDisplayGrabberRegion(t *testing.T) {
	args := stubDisplay(t, 32, 18, func(a ...int) image.Image {
		return image.NewRGBA(image.Rect(0, 0, a[2], a[3]))
	})

	img, err := DisplayGrabber{}.Grab(image.Rect(4, 2, 10, 7))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 6, 5), img.Bounds())
	assert.Equal(t, []int{4, 2, 6, 5}, *args)
}

func TestDisplayGrabberNilImage(t *testing.T) {
	stubDisplay(t, 32, 18, func(...int) image.Image { return nil })

	img, err := DisplayGrabber{}.Grab(image.Rect(0, 0, 4, 4))
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.Nil(t, img)
}
