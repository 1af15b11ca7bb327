// Package hotkey parses key chords such as "Ctrl+Alt+T" and taps them.
package hotkey

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"deskpilot/internal/input"
	"deskpilot/internal/keycode"
)

// ErrInvalidChord is returned for chords that cannot be parsed.
var ErrInvalidChord = errors.New("hotkey: invalid chord")

// Chord is a final key pressed while holding zero or more modifiers. The
// final key is either a named key or a single character.
type Chord struct {
	Modifiers []input.Key
	Key       input.Key
	Char      rune
	original  string
}

// Parse parses a chord string. Parts are separated by "+"; all but the last
// must be modifiers. A trailing "+" means the plus character itself, as in
// "Ctrl++".
func Parse(s string) (Chord, error) {
	c := Chord{original: s}
	raw := strings.TrimSpace(s)
	if raw == "" {
		return c, fmt.Errorf("%w: empty", ErrInvalidChord)
	}

	var parts []string
	switch {
	case raw == "+":
		parts = []string{"+"}
	case strings.HasSuffix(raw, "++"):
		parts = append(strings.Split(raw[:len(raw)-2], "+"), "+")
	default:
		parts = strings.Split(raw, "+")
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}

	last := parts[len(parts)-1]
	for _, p := range parts[:len(parts)-1] {
		k, ok := input.ParseKey(p)
		if !ok || !k.IsModifier() {
			return c, fmt.Errorf("%w: %q is not a modifier in %q", ErrInvalidChord, p, s)
		}
		c.Modifiers = append(c.Modifiers, k)
	}

	if k, ok := input.ParseKey(last); ok {
		c.Key = k
		return c, nil
	}
	if utf8.RuneCountInString(last) == 1 {
		c.Char, _ = utf8.DecodeRuneInString(last)
		return c, nil
	}
	return c, fmt.Errorf("%w: unknown key %q in %q", ErrInvalidChord, last, s)
}

func (c Chord) String() string { return c.original }

// Codes resolves the chord to the final key code and modifier codes for kb.
// Characters that need Shift on the active layout get Shift added to the
// modifiers unless it is already held.
func (c Chord) Codes(kb input.Keyboard, r *keycode.Resolver) (keycode.Code, []keycode.Code, error) {
	var (
		code      keycode.Code
		needShift bool
		err       error
	)
	if c.Key != input.KeyNone {
		if code, err = input.SpecialCode(kb, c.Key); err != nil {
			return 0, nil, err
		}
	} else {
		e, ok := r.Lookup(c.Char)
		if !ok {
			return 0, nil, fmt.Errorf("%w: %q", input.ErrUnsupportedKey, c.Char)
		}
		code, needShift = e.Code, e.Shift
	}

	mods := make([]keycode.Code, 0, len(c.Modifiers)+1)
	hasShift := false
	for _, m := range c.Modifiers {
		mc, err := input.SpecialCode(kb, m)
		if err != nil {
			return 0, nil, err
		}
		hasShift = hasShift || m == input.KeyShift
		mods = append(mods, mc)
	}
	if needShift && !hasShift {
		shift, err := input.SpecialCode(kb, input.KeyShift)
		if err != nil {
			return 0, nil, err
		}
		mods = append(mods, shift)
	}
	return code, mods, nil
}

// Tap presses the chord on kb.
func (c Chord) Tap(kb input.Keyboard, r *keycode.Resolver) error {
	code, mods, err := c.Codes(kb, r)
	if err != nil {
		return err
	}
	return input.Tap(kb, code, mods...)
}
