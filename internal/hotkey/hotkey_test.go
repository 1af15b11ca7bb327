package hotkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskpilot/internal/input"
	"deskpilot/internal/keycode"
)

type keyEvent struct {
	code keycode.Code
	down bool
}

type fakeKeyboard struct {
	events []keyEvent
}

var fakeSpecial = map[input.Key]keycode.Code{
	input.KeyShift:   50,
	input.KeyControl: 51,
	input.KeyAlt:     52,
	input.KeyMeta:    53,
	input.KeyTab:     54,
}

func (f *fakeKeyboard) PostKey(code keycode.Code, down bool) error {
	f.events = append(f.events, keyEvent{code, down})
	return nil
}

func (f *fakeKeyboard) SpecialKey(k input.Key) (keycode.Code, bool) {
	c, ok := fakeSpecial[k]
	return c, ok
}

func resolver() *keycode.Resolver {
	return keycode.NewResolver(&keycode.StaticLayout{
		First:     0,
		Last:      10,
		Unshifted: map[keycode.Code]rune{1: 't', 2: '=', 3: 'c'},
		Shifted:   map[keycode.Code]rune{1: 'T', 2: '+'},
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		mods []input.Key
		key  input.Key
		char rune
	}{
		{"Ctrl+Shift+T", []input.Key{input.KeyControl, input.KeyShift}, input.KeyNone, 'T'},
		{"alt + tab", []input.Key{input.KeyAlt}, input.KeyTab, 0},
		{"cmd+c", []input.Key{input.KeyMeta}, input.KeyNone, 'c'},
		{"Ctrl++", []input.Key{input.KeyControl}, input.KeyNone, '+'},
		{"+", nil, input.KeyNone, '+'},
		{"F5", nil, input.KeyF5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.mods, c.Modifiers)
			assert.Equal(t, tt.key, c.Key)
			assert.Equal(t, tt.char, c.Char)
			assert.Equal(t, tt.in, c.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "Ctrl+", "Tab+x", "Ctrl+nope", "Hyper+x"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalidChord, in)
	}
}

func TestTapOrdersModifiers(t *testing.T) {
	c, err := Parse("Ctrl+Alt+t")
	require.NoError(t, err)

	kb := &fakeKeyboard{}
	require.NoError(t, c.Tap(kb, resolver()))
	assert.Equal(t, []keyEvent{
		{51, true}, {52, true}, {1, true}, {1, false}, {52, false}, {51, false},
	}, kb.events)
}

func TestTapAddsShiftForShiftedCharacter(t *testing.T) {
	c, err := Parse("Ctrl++")
	require.NoError(t, err)

	code, mods, err := c.Codes(&fakeKeyboard{}, resolver())
	require.NoError(t, err)
	assert.Equal(t, keycode.Code(2), code)
	assert.Equal(t, []keycode.Code{51, 50}, mods)

	c, err = Parse("Shift+T")
	require.NoError(t, err)
	_, mods, err = c.Codes(&fakeKeyboard{}, resolver())
	require.NoError(t, err)
	assert.Equal(t, []keycode.Code{50}, mods, "shift is not doubled")
}

func TestTapUnknownCharacter(t *testing.T) {
	c, err := Parse("Ctrl+q")
	require.NoError(t, err)
	kb := &fakeKeyboard{}
	assert.ErrorIs(t, c.Tap(kb, resolver()), input.ErrUnsupportedKey)
	assert.Empty(t, kb.events)
}

func TestTapUnsupportedNamedKey(t *testing.T) {
	c, err := Parse("F12")
	require.NoError(t, err)
	assert.ErrorIs(t, c.Tap(&fakeKeyboard{}, resolver()), input.ErrUnsupportedKey)
}
