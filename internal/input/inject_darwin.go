//go:build darwin

package input

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices -framework Carbon

#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>
#include <Carbon/Carbon.h>

static CGPoint dpPointerLocation(void) {
    CGEventRef event = CGEventCreate(NULL);
    CGPoint cursor = CGEventGetLocation(event);
    CFRelease(event);
    return cursor;
}

static int dpMovePointer(CGFloat x, CGFloat y) {
    CGEventRef event = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved, CGPointMake(x, y), kCGMouseButtonLeft);
    if (event == NULL) return 0;
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
    return 1;
}

static int dpPostButton(int button, bool pressed) {
    CGMouseButton cgButton;
    CGEventType eventType;

    switch (button) {
        case 1:
            cgButton = kCGMouseButtonLeft;
            eventType = pressed ? kCGEventLeftMouseDown : kCGEventLeftMouseUp;
            break;
        case 2:
            cgButton = kCGMouseButtonRight;
            eventType = pressed ? kCGEventRightMouseDown : kCGEventRightMouseUp;
            break;
        case 3:
            cgButton = kCGMouseButtonCenter;
            eventType = pressed ? kCGEventOtherMouseDown : kCGEventOtherMouseUp;
            break;
        default:
            return 0;
    }

    CGEventRef event = CGEventCreateMouseEvent(NULL, eventType, dpPointerLocation(), cgButton);
    if (event == NULL) return 0;
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
    return 1;
}

static int dpPostKey(CGKeyCode keyCode, bool pressed) {
    CGEventRef event = CGEventCreateKeyboardEvent(NULL, keyCode, pressed);
    if (event == NULL) return 0;
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
    return 1;
}

static size_t dpDisplayWidth(void) { return CGDisplayPixelsWide(CGMainDisplayID()); }
static size_t dpDisplayHeight(void) { return CGDisplayPixelsHigh(CGMainDisplayID()); }

static int dpCharForKey(CGKeyCode code, int shifted, UniChar *out) {
    TISInputSourceRef src = TISCopyCurrentKeyboardLayoutInputSource();
    if (src == NULL) return 0;
    CFDataRef data = (CFDataRef)TISGetInputSourceProperty(src, kTISPropertyUnicodeKeyLayoutData);
    if (data == NULL) {
        CFRelease(src);
        return 0;
    }
    const UCKeyboardLayout *layout = (const UCKeyboardLayout *)CFDataGetBytePtr(data);
    UInt32 deadKeyState = 0;
    UniChar chars[4];
    UniCharCount length = 0;
    UInt32 mods = shifted ? ((shiftKey >> 8) & 0xFF) : 0;
    OSStatus err = UCKeyTranslate(layout, code, kUCKeyActionDisplay, mods, LMGetKbdType(),
                                  kUCKeyTranslateNoDeadKeysBit, &deadKeyState, 4, &length, chars);
    CFRelease(src);
    if (err != noErr || length == 0) return 0;
    *out = chars[0];
    return 1;
}

static unsigned long long dpLayoutGeneration(void) {
    TISInputSourceRef src = TISCopyCurrentKeyboardLayoutInputSource();
    if (src == NULL) return 0;
    CFStringRef sourceID = (CFStringRef)TISGetInputSourceProperty(src, kTISPropertyInputSourceID);
    unsigned long long h = sourceID ? (unsigned long long)CFHash(sourceID) : 0;
    CFRelease(src);
    return h;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unicode"

	"deskpilot/internal/keycode"
)

// macOS virtual key codes (kVK_*) for named keys.
var darwinSpecialKeys = map[Key]keycode.Code{
	KeyShift:     0x38,
	KeyControl:   0x3B,
	KeyAlt:       0x3A,
	KeyMeta:      0x37,
	KeyEnter:     0x24,
	KeyTab:       0x30,
	KeyEscape:    0x35,
	KeySpace:     0x31,
	KeyBackspace: 0x33,
	KeyDelete:    0x75,
	KeyHome:      0x73,
	KeyEnd:       0x77,
	KeyPageUp:    0x74,
	KeyPageDown:  0x79,
	KeyLeft:      0x7B,
	KeyRight:     0x7C,
	KeyUp:        0x7E,
	KeyDown:      0x7D,
	KeyCapsLock:  0x39,
	KeyF1:        0x7A,
	KeyF2:        0x78,
	KeyF3:        0x63,
	KeyF4:        0x76,
	KeyF5:        0x60,
	KeyF6:        0x61,
	KeyF7:        0x62,
	KeyF8:        0x64,
	KeyF9:        0x65,
	KeyF10:       0x6D,
	KeyF11:       0x67,
	KeyF12:       0x6F,
}

// darwinBackend injects events through CoreGraphics.
type darwinBackend struct {
	layout darwinLayout
}

// New returns the CoreGraphics backend.
func New() (Backend, error) {
	return &darwinBackend{}, nil
}

func (d *darwinBackend) Position() (Point, error) {
	p := C.dpPointerLocation()
	return Point{X: int(p.x), Y: int(p.y)}, nil
}

func (d *darwinBackend) SetPosition(p Point) error {
	if C.dpMovePointer(C.CGFloat(p.X), C.CGFloat(p.Y)) == 0 {
		return errors.New("CGEventCreateMouseEvent failed")
	}
	return nil
}

func (d *darwinBackend) PostButton(down bool, b Button) error {
	if !b.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidButton, int(b))
	}
	if C.dpPostButton(C.int(b), C.bool(down)) == 0 {
		return errors.New("CGEventCreateMouseEvent failed")
	}
	return nil
}

func (d *darwinBackend) ScreenSize() (Size, error) {
	return Size{Width: int(C.dpDisplayWidth()), Height: int(C.dpDisplayHeight())}, nil
}

func (d *darwinBackend) PostKey(code keycode.Code, down bool) error {
	if code > 0xFFFF {
		return fmt.Errorf("%w: code %d", ErrUnsupportedKey, code)
	}
	if C.dpPostKey(C.CGKeyCode(code), C.bool(down)) == 0 {
		return errors.New("CGEventCreateKeyboardEvent failed")
	}
	return nil
}

func (d *darwinBackend) SpecialKey(k Key) (keycode.Code, bool) {
	code, ok := darwinSpecialKeys[k]
	return code, ok
}

func (d *darwinBackend) Layout() keycode.Layout { return d.layout }

func (d *darwinBackend) Close() error { return nil }

// darwinLayout translates virtual keys 0-127 with UCKeyTranslate.
type darwinLayout struct{}

func (darwinLayout) KeyRange() (keycode.Code, keycode.Code) { return 0, 127 }

func (darwinLayout) CharForKey(code keycode.Code, shifted bool) (rune, bool) {
	var ch C.UniChar
	s := C.int(0)
	if shifted {
		s = 1
	}
	if C.dpCharForKey(C.CGKeyCode(code), s, &ch) == 0 {
		return 0, false
	}
	r := rune(ch)
	if !unicode.IsPrint(r) {
		return 0, false
	}
	return r, true
}

func (darwinLayout) Generation() uint64 { return uint64(C.dpLayoutGeneration()) }
