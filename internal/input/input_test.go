package input

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskpilot/internal/keycode"
)

type event struct {
	kind string
	code keycode.Code
	down bool
}

type recorder struct {
	events  []event
	fail    func(event) bool
	special map[Key]keycode.Code
}

func newRecorder() *recorder {
	return &recorder{
		special: map[Key]keycode.Code{
			KeyShift:   100,
			KeyControl: 101,
			KeyEnter:   102,
			KeyTab:     103,
		},
	}
}

func (r *recorder) record(e event) error {
	if r.fail != nil && r.fail(e) {
		return errors.New("injected failure")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Position() (Point, error)  { return Point{}, nil }
func (r *recorder) SetPosition(Point) error   { return nil }
func (r *recorder) ScreenSize() (Size, error) { return Size{Width: 10, Height: 10}, nil }
func (r *recorder) PostButton(down bool, b Button) error {
	return r.record(event{kind: "btn", code: keycode.Code(b), down: down})
}
func (r *recorder) PostKey(code keycode.Code, down bool) error {
	return r.record(event{kind: "key", code: code, down: down})
}
func (r *recorder) SpecialKey(k Key) (keycode.Code, bool) {
	c, ok := r.special[k]
	return c, ok
}

func testResolver() *keycode.Resolver {
	return keycode.NewResolver(&keycode.StaticLayout{
		First:     0,
		Last:      5,
		Unshifted: map[keycode.Code]rune{0: 'a', 1: 'b', 2: '1'},
		Shifted:   map[keycode.Code]rune{0: 'A', 2: '!'},
	})
}

func TestClickIsDownThenUp(t *testing.T) {
	r := newRecorder()
	require.NoError(t, Click(r, Right))
	assert.Equal(t, []event{
		{kind: "btn", code: keycode.Code(Right), down: true},
		{kind: "btn", code: keycode.Code(Right), down: false},
	}, r.events)
}

func TestClickStopsOnDownFailure(t *testing.T) {
	r := newRecorder()
	r.fail = func(event) bool { return true }
	assert.Error(t, Click(r, Left))
	assert.Empty(t, r.events)
}

func TestClickInvalidButton(t *testing.T) {
	r := newRecorder()
	assert.ErrorIs(t, Click(r, Button(9)), ErrInvalidButton)
	assert.Empty(t, r.events)
}

func TestParseButton(t *testing.T) {
	for in, want := range map[string]Button{
		"left": Left, "": Left, "RIGHT": Right, "middle": Middle, "center": Middle, "other": Middle,
	} {
		got, err := ParseButton(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseButton("fourth")
	assert.ErrorIs(t, err, ErrInvalidButton)
	assert.Equal(t, "middle", Middle.String())
}

func TestSizeContains(t *testing.T) {
	s := Size{Width: 1920, Height: 1080}
	assert.True(t, s.Contains(Point{0, 0}))
	assert.True(t, s.Contains(Point{1919, 1079}))
	assert.False(t, s.Contains(Point{1920, 0}))
	assert.False(t, s.Contains(Point{0, 1080}))
	assert.False(t, s.Contains(Point{-1, 5}))
}

func TestTapReleasesModifiersInReverse(t *testing.T) {
	r := newRecorder()
	require.NoError(t, Tap(r, 7, 100, 101))
	assert.Equal(t, []event{
		{"key", 100, true},
		{"key", 101, true},
		{"key", 7, true},
		{"key", 7, false},
		{"key", 101, false},
		{"key", 100, false},
	}, r.events)
}

func TestTapReleasesHeldModifiersOnFailure(t *testing.T) {
	r := newRecorder()
	r.fail = func(e event) bool { return e.code == 101 && e.down }
	err := Tap(r, 7, 100, 101)
	assert.Error(t, err)
	assert.Equal(t, []event{{"key", 100, true}, {"key", 100, false}}, r.events)
}

func TestTypeString(t *testing.T) {
	r := newRecorder()
	require.NoError(t, TypeString(r, testResolver(), "aA!\n"))
	assert.Equal(t, []event{
		{"key", 0, true}, {"key", 0, false},
		{"key", 100, true}, {"key", 0, true}, {"key", 0, false}, {"key", 100, false},
		{"key", 100, true}, {"key", 2, true}, {"key", 2, false}, {"key", 100, false},
		{"key", 102, true}, {"key", 102, false},
	}, r.events)
}

func TestTypeStringUnsupported(t *testing.T) {
	r := newRecorder()
	err := TypeString(r, testResolver(), "ab€")
	assert.ErrorIs(t, err, ErrUnsupportedKey)
	assert.Len(t, r.events, 4, "characters before the failure are typed")
}

func TestParseKey(t *testing.T) {
	k, ok := ParseKey("Ctrl")
	require.True(t, ok)
	assert.Equal(t, KeyControl, k)
	assert.True(t, k.IsModifier())

	k, ok = ParseKey("F12")
	require.True(t, ok)
	assert.False(t, k.IsModifier())

	_, ok = ParseKey("hyper")
	assert.False(t, ok)
}
