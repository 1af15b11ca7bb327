//go:build linux || freebsd || openbsd || netbsd

package input

import (
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgb/xtest"

	"deskpilot/internal/keycode"
)

// X11 keysyms for named keys.
var x11SpecialKeysyms = map[Key]xproto.Keysym{
	KeyShift:     0xffe1,
	KeyControl:   0xffe3,
	KeyAlt:       0xffe9,
	KeyMeta:      0xffeb,
	KeyEnter:     0xff0d,
	KeyTab:       0xff09,
	KeyEscape:    0xff1b,
	KeySpace:     0x0020,
	KeyBackspace: 0xff08,
	KeyDelete:    0xffff,
	KeyHome:      0xff50,
	KeyEnd:       0xff57,
	KeyPageUp:    0xff55,
	KeyPageDown:  0xff56,
	KeyLeft:      0xff51,
	KeyRight:     0xff53,
	KeyUp:        0xff52,
	KeyDown:      0xff54,
	KeyCapsLock:  0xffe5,
	KeyF1:        0xffbe,
	KeyF2:        0xffbf,
	KeyF3:        0xffc0,
	KeyF4:        0xffc1,
	KeyF5:        0xffc2,
	KeyF6:        0xffc3,
	KeyF7:        0xffc4,
	KeyF8:        0xffc5,
	KeyF9:        0xffc6,
	KeyF10:       0xffc7,
	KeyF11:       0xffc8,
	KeyF12:       0xffc9,
}

// x11Backend injects events through the XTEST extension.
type x11Backend struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	layout *x11Layout
}

// New connects to $DISPLAY and initialises XTEST.
func New() (Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("x11 connect: %w", err)
	}
	if err := xtest.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("xtest init: %w", err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)
	return &x11Backend{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		layout: &x11Layout{
			conn:  conn,
			first: setup.MinKeycode,
			last:  setup.MaxKeycode,
		},
	}, nil
}

func (x *x11Backend) Position() (Point, error) {
	reply, err := xproto.QueryPointer(x.conn, x.root).Reply()
	if err != nil {
		return Point{}, fmt.Errorf("QueryPointer: %w", err)
	}
	return Point{X: int(reply.RootX), Y: int(reply.RootY)}, nil
}

func (x *x11Backend) SetPosition(p Point) error {
	err := xproto.WarpPointerChecked(x.conn, xproto.WindowNone, x.root,
		0, 0, 0, 0, int16(p.X), int16(p.Y)).Check()
	if err != nil {
		return fmt.Errorf("WarpPointer: %w", err)
	}
	return nil
}

func (x *x11Backend) PostButton(down bool, b Button) error {
	if !b.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidButton, int(b))
	}
	// X11 numbers middle as 2 and right as 3.
	detail := byte(1)
	switch b {
	case Middle:
		detail = 2
	case Right:
		detail = 3
	}
	typ := byte(xproto.ButtonRelease)
	if down {
		typ = xproto.ButtonPress
	}
	return x.fake(typ, detail)
}

func (x *x11Backend) ScreenSize() (Size, error) {
	return Size{Width: int(x.screen.WidthInPixels), Height: int(x.screen.HeightInPixels)}, nil
}

func (x *x11Backend) PostKey(code keycode.Code, down bool) error {
	if code > 0xFF {
		return fmt.Errorf("%w: code %d", ErrUnsupportedKey, code)
	}
	typ := byte(xproto.KeyRelease)
	if down {
		typ = xproto.KeyPress
	}
	return x.fake(typ, byte(code))
}

func (x *x11Backend) SpecialKey(k Key) (keycode.Code, bool) {
	sym, ok := x11SpecialKeysyms[k]
	if !ok {
		return 0, false
	}
	return x.layout.codeForKeysym(sym)
}

func (x *x11Backend) Layout() keycode.Layout { return x.layout }

func (x *x11Backend) Close() error {
	x.conn.Close()
	return nil
}

func (x *x11Backend) fake(typ, detail byte) error {
	err := xtest.FakeInputChecked(x.conn, typ, detail, 0, x.root, 0, 0, 0).Check()
	if err != nil {
		return fmt.Errorf("XTestFakeInput: %w", err)
	}
	x.conn.Sync()
	return nil
}

// x11Layout reads the server keyboard mapping. The first keysym of each
// keycode is the unshifted symbol and the second the shifted one.
type x11Layout struct {
	conn        *xgb.Conn
	first, last xproto.Keycode

	mu      sync.Mutex
	mapping *xproto.GetKeyboardMappingReply
}

func (l *x11Layout) KeyRange() (keycode.Code, keycode.Code) {
	// The table is rebuilt from a fresh mapping.
	l.mu.Lock()
	l.mapping = nil
	l.mu.Unlock()
	return keycode.Code(l.first), keycode.Code(l.last)
}

func (l *x11Layout) CharForKey(code keycode.Code, shifted bool) (rune, bool) {
	col := 0
	if shifted {
		col = 1
	}
	sym, ok := l.keysym(code, col)
	if !ok {
		return 0, false
	}
	return keysymToRune(sym)
}

// Generation is constant; layout switches are picked up through
// Resolver.Invalidate, which rescans and so refetches the mapping.
func (l *x11Layout) Generation() uint64 { return 0 }

func (l *x11Layout) load() (*xproto.GetKeyboardMappingReply, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mapping != nil {
		return l.mapping, nil
	}
	count := byte(int(l.last) - int(l.first) + 1)
	reply, err := xproto.GetKeyboardMapping(l.conn, l.first, count).Reply()
	if err != nil {
		return nil, err
	}
	l.mapping = reply
	return reply, nil
}

func (l *x11Layout) keysym(code keycode.Code, col int) (xproto.Keysym, bool) {
	if code < keycode.Code(l.first) || code > keycode.Code(l.last) {
		return 0, false
	}
	m, err := l.load()
	if err != nil {
		return 0, false
	}
	per := int(m.KeysymsPerKeycode)
	if col >= per {
		return 0, false
	}
	idx := int(code-keycode.Code(l.first))*per + col
	if idx >= len(m.Keysyms) || m.Keysyms[idx] == 0 {
		return 0, false
	}
	return m.Keysyms[idx], true
}

func (l *x11Layout) codeForKeysym(sym xproto.Keysym) (keycode.Code, bool) {
	for code := keycode.Code(l.first); code <= keycode.Code(l.last); code++ {
		if s, ok := l.keysym(code, 0); ok && s == sym {
			return code, true
		}
	}
	return 0, false
}

// keysymToRune converts Latin-1 keysyms and Unicode keysyms (0x01000000 |
// codepoint) to runes.
func keysymToRune(sym xproto.Keysym) (rune, bool) {
	switch {
	case sym >= 0x20 && sym <= 0x7e, sym >= 0xa0 && sym <= 0xff:
		return rune(sym), true
	case sym&0xff000000 == 0x01000000:
		return rune(sym & 0x00ffffff), true
	}
	return 0, false
}
