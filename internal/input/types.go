// Package input provides cross-platform pointer and keyboard injection.
package input

import (
	"errors"
	"fmt"
	"strings"

	"deskpilot/internal/keycode"
)

var (
	// ErrUnsupportedPlatform is returned by New on platforms without a backend.
	ErrUnsupportedPlatform = errors.New("input: injection not supported on this platform")
	// ErrUnsupportedKey is returned when a character or named key has no key code.
	ErrUnsupportedKey = errors.New("input: unsupported key")
	// ErrInvalidButton is returned for buttons outside Left, Right, Middle.
	ErrInvalidButton = errors.New("input: invalid button")
)

// Point is a screen coordinate in native display units, origin top-left.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is the size of the primary display.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether p lies in [0,Width) x [0,Height).
func (s Size) Contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < s.Width && p.Y < s.Height
}

// Button is a mouse button.
type Button int

const (
	Left   Button = 1
	Right  Button = 2
	Middle Button = 3
)

func (b Button) Valid() bool { return b >= Left && b <= Middle }

func (b Button) String() string {
	switch b {
	case Left:
		return "left"
	case Right:
		return "right"
	case Middle:
		return "middle"
	}
	return fmt.Sprintf("button(%d)", int(b))
}

// ParseButton accepts "left", "right", "middle" (also "center" and "other").
func ParseButton(s string) (Button, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left":
		return Left, nil
	case "right":
		return Right, nil
	case "middle", "center", "other":
		return Middle, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidButton, s)
}

// Pointer is the per-platform pointer capability set.
type Pointer interface {
	Position() (Point, error)
	SetPosition(p Point) error
	PostButton(down bool, b Button) error
	ScreenSize() (Size, error)
}

// Keyboard is the per-platform key injection capability set.
type Keyboard interface {
	PostKey(code keycode.Code, down bool) error
	// SpecialKey returns the platform code for a named key.
	SpecialKey(k Key) (keycode.Code, bool)
}

// Backend combines pointer and keyboard injection with the active layout.
type Backend interface {
	Pointer
	Keyboard
	Layout() keycode.Layout
	Close() error
}
