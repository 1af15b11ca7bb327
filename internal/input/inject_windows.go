//go:build windows

package input

import (
	"fmt"
	"unsafe"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"

	"deskpilot/internal/keycode"
)

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	procToUnicodeEx     = user32.NewProc("ToUnicodeEx")
	procMapVirtualKeyW  = user32.NewProc("MapVirtualKeyW")
	procGetKeyboardLayt = user32.NewProc("GetKeyboardLayout")
)

const mapvkVKToVSC = 0

var windowsSpecialKeys = map[Key]keycode.Code{
	KeyShift:     win.VK_SHIFT,
	KeyControl:   win.VK_CONTROL,
	KeyAlt:       win.VK_MENU,
	KeyMeta:      win.VK_LWIN,
	KeyEnter:     win.VK_RETURN,
	KeyTab:       win.VK_TAB,
	KeyEscape:    win.VK_ESCAPE,
	KeySpace:     win.VK_SPACE,
	KeyBackspace: win.VK_BACK,
	KeyDelete:    win.VK_DELETE,
	KeyHome:      win.VK_HOME,
	KeyEnd:       win.VK_END,
	KeyPageUp:    win.VK_PRIOR,
	KeyPageDown:  win.VK_NEXT,
	KeyLeft:      win.VK_LEFT,
	KeyRight:     win.VK_RIGHT,
	KeyUp:        win.VK_UP,
	KeyDown:      win.VK_DOWN,
	KeyCapsLock:  win.VK_CAPITAL,
	KeyF1:        win.VK_F1,
	KeyF2:        win.VK_F2,
	KeyF3:        win.VK_F3,
	KeyF4:        win.VK_F4,
	KeyF5:        win.VK_F5,
	KeyF6:        win.VK_F6,
	KeyF7:        win.VK_F7,
	KeyF8:        win.VK_F8,
	KeyF9:        win.VK_F9,
	KeyF10:       win.VK_F10,
	KeyF11:       win.VK_F11,
	KeyF12:       win.VK_F12,
}

// extendedKeys need KEYEVENTF_EXTENDEDKEY to reach the navigation cluster
// rather than the numeric keypad.
var extendedKeys = map[keycode.Code]bool{
	win.VK_DELETE: true, win.VK_HOME: true, win.VK_END: true,
	win.VK_PRIOR: true, win.VK_NEXT: true, win.VK_LEFT: true,
	win.VK_RIGHT: true, win.VK_UP: true, win.VK_DOWN: true,
	win.VK_LWIN: true, win.VK_INSERT: true,
}

// windowsBackend injects events with SendInput.
type windowsBackend struct {
	layout windowsLayout
}

// New returns the SendInput backend.
func New() (Backend, error) {
	return &windowsBackend{}, nil
}

func (w *windowsBackend) Position() (Point, error) {
	var pt win.POINT
	if !win.GetCursorPos(&pt) {
		return Point{}, fmt.Errorf("GetCursorPos: %w", windows.GetLastError())
	}
	return Point{X: int(pt.X), Y: int(pt.Y)}, nil
}

func (w *windowsBackend) SetPosition(p Point) error {
	if !win.SetCursorPos(int32(p.X), int32(p.Y)) {
		return fmt.Errorf("SetCursorPos: %w", windows.GetLastError())
	}
	// SetCursorPos does not generate a move event for hover-sensitive
	// windows; a zero relative move does.
	in := win.MOUSE_INPUT{Type: win.INPUT_MOUSE}
	in.Mi.DwFlags = win.MOUSEEVENTF_MOVE
	return sendInput(unsafe.Pointer(&in), int32(unsafe.Sizeof(in)))
}

func (w *windowsBackend) PostButton(down bool, b Button) error {
	var flags uint32
	switch b {
	case Left:
		flags = win.MOUSEEVENTF_LEFTUP
		if down {
			flags = win.MOUSEEVENTF_LEFTDOWN
		}
	case Right:
		flags = win.MOUSEEVENTF_RIGHTUP
		if down {
			flags = win.MOUSEEVENTF_RIGHTDOWN
		}
	case Middle:
		flags = win.MOUSEEVENTF_MIDDLEUP
		if down {
			flags = win.MOUSEEVENTF_MIDDLEDOWN
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidButton, int(b))
	}
	in := win.MOUSE_INPUT{Type: win.INPUT_MOUSE}
	in.Mi.DwFlags = flags
	return sendInput(unsafe.Pointer(&in), int32(unsafe.Sizeof(in)))
}

func (w *windowsBackend) ScreenSize() (Size, error) {
	return Size{
		Width:  int(win.GetSystemMetrics(win.SM_CXSCREEN)),
		Height: int(win.GetSystemMetrics(win.SM_CYSCREEN)),
	}, nil
}

func (w *windowsBackend) PostKey(code keycode.Code, down bool) error {
	if code > 0xFF {
		return fmt.Errorf("%w: code %d", ErrUnsupportedKey, code)
	}
	scan, _, _ := procMapVirtualKeyW.Call(uintptr(code), mapvkVKToVSC)
	in := win.KEYBD_INPUT{Type: win.INPUT_KEYBOARD}
	in.Ki.WVk = uint16(code)
	in.Ki.WScan = uint16(scan)
	if !down {
		in.Ki.DwFlags |= win.KEYEVENTF_KEYUP
	}
	if extendedKeys[code] {
		in.Ki.DwFlags |= win.KEYEVENTF_EXTENDEDKEY
	}
	return sendInput(unsafe.Pointer(&in), int32(unsafe.Sizeof(in)))
}

func (w *windowsBackend) SpecialKey(k Key) (keycode.Code, bool) {
	code, ok := windowsSpecialKeys[k]
	return code, ok
}

func (w *windowsBackend) Layout() keycode.Layout { return w.layout }

func (w *windowsBackend) Close() error { return nil }

func sendInput(in unsafe.Pointer, size int32) error {
	if win.SendInput(1, in, size) != 1 {
		return fmt.Errorf("SendInput: %w", windows.GetLastError())
	}
	return nil
}

// windowsLayout translates virtual keys 0-255 with ToUnicodeEx against the
// foreground thread's keyboard layout.
type windowsLayout struct{}

func (windowsLayout) KeyRange() (keycode.Code, keycode.Code) { return 0, 0xFF }

func (windowsLayout) CharForKey(code keycode.Code, shifted bool) (rune, bool) {
	var state [256]byte
	if shifted {
		state[win.VK_SHIFT] = 0x80
	}
	var buf [4]uint16
	hkl := keyboardLayout()
	scan, _, _ := procMapVirtualKeyW.Call(uintptr(code), mapvkVKToVSC)
	// flag 0x4 keeps the call from changing the kernel keyboard state.
	n, _, _ := procToUnicodeEx.Call(
		uintptr(code),
		scan,
		uintptr(unsafe.Pointer(&state[0])),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		0x4,
		hkl,
	)
	if int32(n) != 1 {
		return 0, false
	}
	r := rune(buf[0])
	if r < 0x20 || r == 0x7F {
		return 0, false
	}
	return r, true
}

func (windowsLayout) Generation() uint64 { return uint64(keyboardLayout()) }

func keyboardLayout() uintptr {
	tid := win.GetWindowThreadProcessId(win.GetForegroundWindow(), nil)
	hkl, _, _ := procGetKeyboardLayt.Call(uintptr(tid))
	return hkl
}
