// Package inputtest provides an in-memory input backend for tests.
package inputtest

import (
	"sync"

	"deskpilot/internal/input"
	"deskpilot/internal/keycode"
)

// Event is one recorded injection.
type Event struct {
	Kind   string // "move", "button", "key"
	Point  input.Point
	Button input.Button
	Code   keycode.Code
	Down   bool
}

// Backend is a fake input.Backend on a virtual screen with a US-like layout
// covering lowercase letters, digits and a few punctuation keys.
type Backend struct {
	mu     sync.Mutex
	pos    input.Point
	size   input.Size
	events []Event
	closed bool

	// Err, when set, is returned by every injection.
	Err error

	layout *keycode.StaticLayout
}

// Special key codes used by the fake layout.
const (
	CodeShift   keycode.Code = 200
	CodeControl keycode.Code = 201
	CodeAlt     keycode.Code = 202
	CodeMeta    keycode.Code = 203
	CodeEnter   keycode.Code = 204
	CodeTab     keycode.Code = 205
	CodeEscape  keycode.Code = 206
)

var special = map[input.Key]keycode.Code{
	input.KeyShift:   CodeShift,
	input.KeyControl: CodeControl,
	input.KeyAlt:     CodeAlt,
	input.KeyMeta:    CodeMeta,
	input.KeyEnter:   CodeEnter,
	input.KeyTab:     CodeTab,
	input.KeyEscape:  CodeEscape,
}

// New creates a fake backend of the given screen size with the pointer at
// the origin.
func New(width, height int) *Backend {
	l := &keycode.StaticLayout{
		First:     0,
		Last:      127,
		Unshifted: map[keycode.Code]rune{},
		Shifted:   map[keycode.Code]rune{},
	}
	for i, ch := range "abcdefghijklmnopqrstuvwxyz" {
		l.Unshifted[keycode.Code(i)] = ch
		l.Shifted[keycode.Code(i)] = ch - 'a' + 'A'
	}
	for i, ch := range "1234567890" {
		l.Unshifted[keycode.Code(30+i)] = ch
		l.Shifted[keycode.Code(30+i)] = rune("!@#$%^&*()"[i])
	}
	l.Unshifted[40] = ' '
	l.Unshifted[41] = '-'
	l.Shifted[41] = '_'
	l.Unshifted[42] = '.'
	return &Backend{size: input.Size{Width: width, Height: height}, layout: l}
}

// Place moves the pointer without recording an event.
func (b *Backend) Place(p input.Point) {
	b.mu.Lock()
	b.pos = p
	b.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (b *Backend) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// StaticLayout exposes the layout so tests can change it.
func (b *Backend) StaticLayout() *keycode.StaticLayout { return b.layout }

func (b *Backend) Position() (input.Point, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos, nil
}

func (b *Backend) ScreenSize() (input.Size, error) {
	return b.size, nil
}

func (b *Backend) SetPosition(p input.Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.pos = p
	b.events = append(b.events, Event{Kind: "move", Point: p})
	return nil
}

func (b *Backend) PostButton(down bool, btn input.Button) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.events = append(b.events, Event{Kind: "button", Button: btn, Down: down, Point: b.pos})
	return nil
}

func (b *Backend) PostKey(code keycode.Code, down bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.events = append(b.events, Event{Kind: "key", Code: code, Down: down})
	return nil
}

func (b *Backend) SpecialKey(k input.Key) (keycode.Code, bool) {
	c, ok := special[k]
	return c, ok
}

func (b *Backend) Layout() keycode.Layout { return b.layout }

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
