// Package desktop composes the pointer, keyboard and capture layers into the
// operations exposed by the CLI and the remote control servers.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"deskpilot/internal/bitmap"
	"deskpilot/internal/config"
	"deskpilot/internal/hotkey"
	"deskpilot/internal/input"
	"deskpilot/internal/keycode"
	"deskpilot/internal/motion"
	"deskpilot/internal/screen"
)

// ErrCaptureUnavailable is returned by Capture when no capturer is configured.
var ErrCaptureUnavailable = errors.New("desktop: screen capture unavailable")

// Action describes a completed operation, reported to the action observer.
type Action struct {
	Op    string
	Point *input.Point
	Err   error
}

// Desktop serialises access to one input backend. Operations from the CLI,
// the HTTP API, WebSocket clients and the UDP relay all go through it.
type Desktop struct {
	mu       sync.Mutex
	backend  input.Backend
	synth    *motion.Synthesizer
	resolver *keycode.Resolver
	capturer *screen.Capturer
	logger   *zap.Logger

	motionOpts []motion.Option
	onAction   func(Action)
}

// Option configures a Desktop.
type Option func(*Desktop)

// WithLogger sets the logger for the desktop and its components.
func WithLogger(l *zap.Logger) Option {
	return func(d *Desktop) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMotion passes options to the smooth move synthesizer.
func WithMotion(opts ...motion.Option) Option {
	return func(d *Desktop) { d.motionOpts = append(d.motionOpts, opts...) }
}

// WithCapturer enables Capture.
func WithCapturer(c *screen.Capturer) Option {
	return func(d *Desktop) { d.capturer = c }
}

// New creates a Desktop over backend.
func New(backend input.Backend, opts ...Option) *Desktop {
	d := &Desktop{backend: backend, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	mopts := append([]motion.Option{motion.WithLogger(d.logger.Named("motion"))}, d.motionOpts...)
	d.synth = motion.New(backend, mopts...)
	d.resolver = keycode.NewResolver(backend.Layout(), keycode.WithLogger(d.logger.Named("keycode")))
	return d
}

// FromConfig creates a Desktop with motion tuning and screen capture taken
// from cfg. opts are applied last.
func FromConfig(backend input.Backend, cfg config.Config, logger *zap.Logger, opts ...Option) *Desktop {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := cfg.Motion
	base := []Option{
		WithLogger(logger),
		WithMotion(
			motion.WithGravity(m.GravityMin, m.GravityMax),
			motion.WithDelay(m.DelayMin, m.DelayMax),
			motion.WithMaxSteps(m.MaxSteps),
		),
		WithCapturer(screen.NewCapturer(screen.DisplayGrabber{}, cfg.Capture.MaxBytes, logger.Named("screen"))),
	}
	return New(backend, append(base, opts...)...)
}

// SetOnAction registers an observer called after every mutating operation.
// fn runs with the desktop locked and must not call back into it.
func (d *Desktop) SetOnAction(fn func(Action)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onAction = fn
}

func (d *Desktop) report(op string, p *input.Point, err error) {
	if err != nil {
		d.logger.Warn("operation failed", zap.String("op", op), zap.Error(err))
	} else {
		d.logger.Debug("operation done", zap.String("op", op))
	}
	if d.onAction != nil {
		d.onAction(Action{Op: op, Point: p, Err: err})
	}
}

// Position returns the pointer location.
func (d *Desktop) Position() (input.Point, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backend.Position()
}

// ScreenSize returns the primary display size.
func (d *Desktop) ScreenSize() (input.Size, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backend.ScreenSize()
}

// PointVisible reports whether p is on the primary display.
func (d *Desktop) PointVisible(p input.Point) (bool, error) {
	size, err := d.ScreenSize()
	if err != nil {
		return false, err
	}
	return size.Contains(p), nil
}

// Move places the pointer at p immediately. p is not bounds checked.
func (d *Desktop) Move(p input.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.backend.SetPosition(p)
	d.report("move", &p, err)
	return err
}

// SmoothMove moves the pointer to p along a human-like path.
func (d *Desktop) SmoothMove(ctx context.Context, p input.Point) (motion.Stats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats, err := d.synth.SmoothMoveStats(ctx, p)
	d.report("smooth_move", &p, err)
	return stats, err
}

// Toggle presses or releases b.
func (d *Desktop) Toggle(down bool, b input.Button) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.backend.PostButton(down, b)
	op := "button_up"
	if down {
		op = "button_down"
	}
	d.report(op, nil, err)
	return err
}

// Click presses and releases b.
func (d *Desktop) Click(b input.Button) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := input.Click(d.backend, b)
	d.report("click", nil, err)
	return err
}

// Nudge moves the pointer one pixel and back, which wakes displays and
// screen savers.
func (d *Desktop) Nudge() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.backend.Position()
	if err == nil {
		next := input.Point{X: p.X + 1, Y: p.Y + 1}
		if size, serr := d.backend.ScreenSize(); serr == nil && !size.Contains(next) {
			next = input.Point{X: p.X - 1, Y: p.Y - 1}
		}
		if err = d.backend.SetPosition(next); err == nil {
			err = d.backend.SetPosition(p)
		}
	}
	d.report("nudge", nil, err)
	return err
}

// PostKey presses or releases a raw platform key code.
func (d *Desktop) PostKey(code keycode.Code, down bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.backend.PostKey(code, down)
	d.report("key", nil, err)
	return err
}

// TypeString types s, checking ctx between characters.
func (d *Desktop) TypeString(ctx context.Context, s string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	for _, ch := range s {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = input.TypeRune(d.backend, d.resolver, ch); err != nil {
			break
		}
	}
	d.report("type", nil, err)
	return err
}

// Tap presses a chord such as "Ctrl+Shift+T".
func (d *Desktop) Tap(chord string) error {
	c, err := hotkey.Parse(chord)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	err = c.Tap(d.backend, d.resolver)
	d.report("tap", nil, err)
	return err
}

// KeyCode resolves ch on the active layout.
func (d *Desktop) KeyCode(ch rune) (keycode.Entry, bool) {
	return d.resolver.Lookup(ch)
}

// InvalidateKeymap forces the character table to be rebuilt, for example
// after the user switches keyboard layout.
func (d *Desktop) InvalidateKeymap() {
	d.resolver.Invalidate()
}

// Capture grabs rect (the whole display when zero) into a bitmap owned by
// the caller.
func (d *Desktop) Capture(rect image.Rectangle) (*bitmap.Bitmap, error) {
	if d.capturer == nil {
		return nil, ErrCaptureUnavailable
	}
	bmp, err := d.capturer.Capture(rect)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return bmp, nil
}

// Close releases the backend.
func (d *Desktop) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backend.Close()
}
