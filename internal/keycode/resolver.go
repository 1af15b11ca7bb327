// Package keycode maps typed characters to platform key codes.
//
// A Resolver builds its table lazily from a Layout the first time it is
// asked for a character, walking key codes in ascending order. Unshifted
// characters are collected first, then shifted ones, and the first key that
// produces a character wins.
package keycode

import (
	"math"
	"sync"

	"go.uber.org/zap"
)

// Code is a platform key code (macOS virtual key, Windows VK, X11 keycode).
type Code uint32

// NotFound is returned by Resolve for characters no key produces.
const NotFound Code = math.MaxUint32

// Entry is a resolved character.
type Entry struct {
	Code  Code
	Shift bool
}

// Layout describes the active keyboard layout.
type Layout interface {
	// KeyRange returns the inclusive range of key codes to scan.
	KeyRange() (first, last Code)
	// CharForKey returns the character produced by code, with or without
	// Shift held.
	CharForKey(code Code, shifted bool) (rune, bool)
	// Generation changes whenever the active layout changes.
	Generation() uint64
}

// Resolver caches the character to key code table for a Layout.
type Resolver struct {
	layout Layout
	logger *zap.Logger

	mu    sync.Mutex
	table map[rune]Entry
	gen   uint64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used to report table rebuilds.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver over layout. Nothing is built until the
// first lookup.
func NewResolver(layout Layout, opts ...Option) *Resolver {
	r := &Resolver{layout: layout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the key code producing ch, or NotFound.
func (r *Resolver) Resolve(ch rune) Code {
	e, ok := r.Lookup(ch)
	if !ok {
		return NotFound
	}
	return e.Code
}

// Lookup returns the key code producing ch and whether Shift is required.
func (r *Resolver) Lookup(ch rune) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked()
	e, ok := r.table[ch]
	return e, ok
}

// Len returns the number of characters in the table, building it if needed.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked()
	return len(r.table)
}

// Invalidate drops the table; the next lookup rebuilds it.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.table = nil
	r.mu.Unlock()
}

func (r *Resolver) ensureLocked() {
	gen := r.layout.Generation()
	if r.table != nil && gen == r.gen {
		return
	}
	r.table = build(r.layout)
	r.gen = gen
	r.logger.Debug("keycode table built",
		zap.Int("entries", len(r.table)),
		zap.Uint64("generation", gen))
}

func build(l Layout) map[rune]Entry {
	first, last := l.KeyRange()
	table := make(map[rune]Entry)
	if last < first {
		return table
	}
	for _, shifted := range [...]bool{false, true} {
		for code := first; ; code++ {
			if ch, ok := l.CharForKey(code, shifted); ok {
				if _, dup := table[ch]; !dup {
					table[ch] = Entry{Code: code, Shift: shifted}
				}
			}
			if code == last {
				break
			}
		}
	}
	return table
}
