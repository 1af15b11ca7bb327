package desktop

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskpilot/internal/bitmap"
	"deskpilot/internal/hotkey"
	"deskpilot/internal/input"
	"deskpilot/internal/input/inputtest"
	"deskpilot/internal/keycode"
	"deskpilot/internal/motion"
	"deskpilot/internal/screen"
)

func noSleep() motion.Option {
	return motion.WithSleeper(motion.SleeperFunc(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
}

func newDesktop(t *testing.T, opts ...Option) (*Desktop, *inputtest.Backend) {
	t.Helper()
	b := inputtest.New(1920, 1080)
	d := New(b, append([]Option{WithMotion(noSleep())}, opts...)...)
	return d, b
}

func TestMoveAndPosition(t *testing.T) {
	d, _ := newDesktop(t)

	require.NoError(t, d.Move(input.Point{X: 30, Y: 40}))
	p, err := d.Position()
	require.NoError(t, err)
	assert.Equal(t, input.Point{X: 30, Y: 40}, p)
}

func TestMoveIsNotBoundsChecked(t *testing.T) {
	d, b := newDesktop(t)
	require.NoError(t, d.Move(input.Point{X: 5000, Y: -3}))
	assert.Equal(t, input.Point{X: 5000, Y: -3}, b.Events()[0].Point)
}

func TestSmoothMove(t *testing.T) {
	d, b := newDesktop(t)

	stats, err := d.SmoothMove(context.Background(), input.Point{X: 120, Y: 80})
	require.NoError(t, err)
	assert.Equal(t, len(b.Events()), stats.Steps)

	p, _ := d.Position()
	assert.InDelta(t, 120, p.X, 1)
	assert.InDelta(t, 80, p.Y, 1)
}

func TestSmoothMoveBoundary(t *testing.T) {
	d, _ := newDesktop(t)
	require.NoError(t, d.Move(input.Point{X: 100, Y: 100}))

	_, err := d.SmoothMove(context.Background(), input.Point{X: 5000, Y: 100})
	assert.ErrorIs(t, err, motion.ErrBoundaryViolation)
}

func TestSmoothMoveUsesMotionOptions(t *testing.T) {
	d, _ := newDesktop(t, WithMotion(motion.WithMaxSteps(3)))
	_, err := d.SmoothMove(context.Background(), input.Point{X: 500, Y: 500})
	assert.ErrorIs(t, err, motion.ErrStepLimit)
}

func TestClickAndToggle(t *testing.T) {
	d, b := newDesktop(t)

	require.NoError(t, d.Click(input.Right))
	require.NoError(t, d.Toggle(true, input.Left))
	require.NoError(t, d.Toggle(false, input.Left))

	ev := b.Events()
	require.Len(t, ev, 4)
	assert.Equal(t, inputtest.Event{Kind: "button", Button: input.Right, Down: true}, ev[0])
	assert.Equal(t, inputtest.Event{Kind: "button", Button: input.Right, Down: false}, ev[1])
	assert.True(t, ev[2].Down)
	assert.False(t, ev[3].Down)
}

func TestNudgeReturnsPointer(t *testing.T) {
	d, b := newDesktop(t)
	b.Place(input.Point{X: 1919, Y: 1079})

	require.NoError(t, d.Nudge())
	ev := b.Events()
	require.Len(t, ev, 2)
	assert.Equal(t, input.Point{X: 1918, Y: 1078}, ev[0].Point, "steps inward at the edge")
	assert.Equal(t, input.Point{X: 1919, Y: 1079}, ev[1].Point)
}

func TestTypeString(t *testing.T) {
	d, b := newDesktop(t)

	require.NoError(t, d.TypeString(context.Background(), "hi!"))
	codes := make([]keycode.Code, 0)
	for _, e := range b.Events() {
		if e.Down {
			codes = append(codes, e.Code)
		}
	}
	// h=7, i=8, ! = shift + '1' key (30)
	assert.Equal(t, []keycode.Code{7, 8, inputtest.CodeShift, 30}, codes)
}

func TestTypeStringCancelled(t *testing.T) {
	d, b := newDesktop(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, d.TypeString(ctx, "abc"), context.Canceled)
	assert.Empty(t, b.Events())
}

func TestTap(t *testing.T) {
	d, b := newDesktop(t)

	require.NoError(t, d.Tap("Ctrl+c"))
	ev := b.Events()
	require.Len(t, ev, 4)
	assert.Equal(t, inputtest.CodeControl, ev[0].Code)
	assert.Equal(t, keycode.Code(2), ev[1].Code)

	assert.ErrorIs(t, d.Tap("Tab+x"), hotkey.ErrInvalidChord)
}

func TestKeyCodeAndInvalidate(t *testing.T) {
	d, b := newDesktop(t)

	e, ok := d.KeyCode('a')
	require.True(t, ok)
	assert.Equal(t, keycode.Code(0), e.Code)

	_, ok = d.KeyCode('€')
	assert.False(t, ok)

	b.StaticLayout().Unshifted[99] = '€'
	d.InvalidateKeymap()
	e, ok = d.KeyCode('€')
	require.True(t, ok)
	assert.Equal(t, keycode.Code(99), e.Code)
}

func TestActionObserver(t *testing.T) {
	d, b := newDesktop(t)
	var got []Action
	d.SetOnAction(func(a Action) { got = append(got, a) })

	require.NoError(t, d.Move(input.Point{X: 1, Y: 2}))
	b.Err = errors.New("denied")
	assert.Error(t, d.Click(input.Left))

	require.Len(t, got, 2)
	assert.Equal(t, "move", got[0].Op)
	assert.Equal(t, &input.Point{X: 1, Y: 2}, got[0].Point)
	assert.Equal(t, "click", got[1].Op)
	assert.EqualError(t, got[1].Err, "denied")
}

func TestPointVisible(t *testing.T) {
	d, _ := newDesktop(t)
	ok, err := d.PointVisible(input.Point{X: 1919, Y: 0})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = d.PointVisible(input.Point{X: 1920, Y: 0})
	assert.False(t, ok)
}

type solidGrabber struct{}

func (solidGrabber) Grab(rect image.Rectangle) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for i := range img.Pix {
		img.Pix[i] = 0x7f
	}
	img.Set(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	return img, nil
}

func TestCapture(t *testing.T) {
	d, _ := newDesktop(t)
	_, err := d.Capture(image.Rect(0, 0, 2, 2))
	assert.ErrorIs(t, err, ErrCaptureUnavailable)

	d, _ = newDesktop(t, WithCapturer(screen.NewCapturer(solidGrabber{}, bitmap.DefaultLimit, nil)))
	bmp, err := d.Capture(image.Rect(0, 0, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, bmp.Buffer()[:4])
	require.NoError(t, bmp.Destroy())
}

func TestClose(t *testing.T) {
	d, b := newDesktop(t)
	require.NoError(t, d.Close())
	assert.True(t, b.Closed())
}
