package input

import (
	"fmt"

	"deskpilot/internal/keycode"
)

// Click presses and releases b with no delay in between.
func Click(p Pointer, b Button) error {
	if !b.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidButton, int(b))
	}
	if err := p.PostButton(true, b); err != nil {
		return err
	}
	return p.PostButton(false, b)
}

// PressKey posts key down then key up for code.
func PressKey(k Keyboard, code keycode.Code) error {
	if err := k.PostKey(code, true); err != nil {
		return err
	}
	return k.PostKey(code, false)
}

// Tap presses code while holding mods, releasing the modifiers in reverse.
func Tap(k Keyboard, code keycode.Code, mods ...keycode.Code) error {
	held := 0
	var err error
	for _, m := range mods {
		if err = k.PostKey(m, true); err != nil {
			break
		}
		held++
	}
	if err == nil {
		err = PressKey(k, code)
	}
	for i := held - 1; i >= 0; i-- {
		if rerr := k.PostKey(mods[i], false); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// SpecialCode returns the platform code for a named key or ErrUnsupportedKey.
func SpecialCode(k Keyboard, key Key) (keycode.Code, error) {
	code, ok := k.SpecialKey(key)
	if !ok {
		return 0, fmt.Errorf("%w: named key %d", ErrUnsupportedKey, key)
	}
	return code, nil
}

// TypeRune types ch using the resolver, holding Shift when the layout needs it.
// Newline and tab are sent as the Enter and Tab keys.
func TypeRune(k Keyboard, r *keycode.Resolver, ch rune) error {
	switch ch {
	case '\n', '\r':
		return tapNamed(k, KeyEnter)
	case '\t':
		return tapNamed(k, KeyTab)
	}
	e, ok := r.Lookup(ch)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedKey, ch)
	}
	if !e.Shift {
		return PressKey(k, e.Code)
	}
	shift, err := SpecialCode(k, KeyShift)
	if err != nil {
		return err
	}
	return Tap(k, e.Code, shift)
}

// TypeString types s one rune at a time, stopping at the first error.
func TypeString(k Keyboard, r *keycode.Resolver, s string) error {
	for _, ch := range s {
		if err := TypeRune(k, r, ch); err != nil {
			return err
		}
	}
	return nil
}

func tapNamed(k Keyboard, key Key) error {
	code, err := SpecialCode(k, key)
	if err != nil {
		return err
	}
	return PressKey(k, code)
}
