// Package motion synthesizes human-like pointer paths.
//
// SmoothMove steers the pointer toward a destination one pixel step at a
// time. Each step adds a randomly weighted pull toward the target to the
// current heading, renormalizes it to unit length and rounds it to the
// pixel grid. The pointer position is re-read from the backend after every
// step, so the path adapts if something else moves the pointer.
package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"deskpilot/internal/input"
)

var (
	// ErrBoundaryViolation is returned when the next step would leave the
	// screen. The pointer stays at its last valid position.
	ErrBoundaryViolation = errors.New("motion: path left the screen")
	// ErrStepLimit is returned when a move exceeds the configured step limit.
	ErrStepLimit = errors.New("motion: step limit exceeded")
)

const (
	DefaultGravityMin = 5.0
	DefaultGravityMax = 500.0
	DefaultDelayMin   = time.Millisecond
	DefaultDelayMax   = 3 * time.Millisecond

	// arrivalRadius is the distance at which the pointer counts as arrived.
	arrivalRadius = 1.0
)

// Rand is a source of uniform floats in [0, 1).
type Rand interface {
	Float64() float64
}

// Sleeper pauses between steps. Implementations return ctx.Err() when the
// context ends before the delay elapses.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// Stats describes a completed or aborted move.
type Stats struct {
	Steps   int
	Start   input.Point
	End     input.Point
	Elapsed time.Duration
}

// Synthesizer moves a pointer along randomized smooth paths.
type Synthesizer struct {
	pointer input.Pointer
	rng     Rand
	sleeper Sleeper
	logger  *zap.Logger

	gravityMin, gravityMax float64
	delayMin, delayMax     time.Duration
	maxSteps               int
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

func WithRand(r Rand) Option {
	return func(s *Synthesizer) { s.rng = r }
}

func WithSleeper(sl Sleeper) Option {
	return func(s *Synthesizer) { s.sleeper = sl }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGravity sets the range the per-step pull is drawn from.
func WithGravity(lo, hi float64) Option {
	return func(s *Synthesizer) { s.gravityMin, s.gravityMax = lo, hi }
}

// WithDelay sets the range of the pause after each step.
func WithDelay(lo, hi time.Duration) Option {
	return func(s *Synthesizer) { s.delayMin, s.delayMax = lo, hi }
}

// WithMaxSteps aborts moves that take more than n steps. Zero, the default,
// allows 4*(width+height) steps; a negative n disables the limit.
func WithMaxSteps(n int) Option {
	return func(s *Synthesizer) { s.maxSteps = n }
}

// New creates a Synthesizer driving p.
func New(p input.Pointer, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		pointer:    p,
		rng:        globalRand{},
		sleeper:    DefaultSleeper(),
		logger:     zap.NewNop(),
		gravityMin: DefaultGravityMin,
		gravityMax: DefaultGravityMax,
		delayMin:   DefaultDelayMin,
		delayMax:   DefaultDelayMax,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SmoothMove moves the pointer to dest. It returns ErrBoundaryViolation if
// the path would leave [0,width) x [0,height), ctx.Err() if ctx ends, or the
// backend's error.
func (s *Synthesizer) SmoothMove(ctx context.Context, dest input.Point) error {
	_, err := s.SmoothMoveStats(ctx, dest)
	return err
}

// SmoothMoveStats is SmoothMove that also reports what the move did.
func (s *Synthesizer) SmoothMoveStats(ctx context.Context, dest input.Point) (Stats, error) {
	started := time.Now()
	stats, err := s.run(ctx, dest)
	stats.Elapsed = time.Since(started)

	fields := []zap.Field{
		zap.Int("steps", stats.Steps),
		zap.Int("from_x", stats.Start.X), zap.Int("from_y", stats.Start.Y),
		zap.Int("to_x", dest.X), zap.Int("to_y", dest.Y),
		zap.Duration("elapsed", stats.Elapsed),
	}
	if err != nil {
		s.logger.Debug("smooth move aborted", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("smooth move done", fields...)
	}
	return stats, err
}

func (s *Synthesizer) run(ctx context.Context, dest input.Point) (Stats, error) {
	var stats Stats

	pos, err := s.pointer.Position()
	if err != nil {
		return stats, fmt.Errorf("read position: %w", err)
	}
	stats.Start, stats.End = pos, pos

	screen, err := s.pointer.ScreenSize()
	if err != nil {
		return stats, fmt.Errorf("read screen size: %w", err)
	}

	limit := s.maxSteps
	if limit == 0 {
		limit = 4 * (screen.Width + screen.Height)
	}

	var vx, vy float64
	dist := distance(pos, dest)
	for dist > arrivalRadius {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if limit > 0 && stats.Steps >= limit {
			return stats, fmt.Errorf("%w: %d", ErrStepLimit, limit)
		}

		gravity := s.uniform(s.gravityMin, s.gravityMax)
		vx += gravity * float64(dest.X-pos.X) / dist
		vy += gravity * float64(dest.Y-pos.Y) / dist
		if l := math.Hypot(vx, vy); l > 0 {
			vx /= l
			vy /= l
		}

		next := input.Point{
			X: pos.X + int(math.Floor(vx+0.5)),
			Y: pos.Y + int(math.Floor(vy+0.5)),
		}
		if !screen.Contains(next) {
			return stats, fmt.Errorf("%w: (%d,%d) outside %dx%d",
				ErrBoundaryViolation, next.X, next.Y, screen.Width, screen.Height)
		}
		if err := s.pointer.SetPosition(next); err != nil {
			return stats, fmt.Errorf("set position: %w", err)
		}
		stats.Steps++
		stats.End = next

		delay := s.delayMin + time.Duration(s.rng.Float64()*float64(s.delayMax-s.delayMin))
		if err := s.sleeper.Sleep(ctx, delay); err != nil {
			return stats, err
		}

		if pos, err = s.pointer.Position(); err != nil {
			return stats, fmt.Errorf("read position: %w", err)
		}
		stats.End = pos
		dist = distance(pos, dest)
	}
	return stats, nil
}

func (s *Synthesizer) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func distance(a, b input.Point) float64 {
	return math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y))
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
