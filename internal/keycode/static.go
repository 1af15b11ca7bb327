package keycode

import "sync/atomic"

// StaticLayout is a fixed Layout backed by per-key character tables. It is
// used where the platform exposes no layout query and in tests.
type StaticLayout struct {
	First, Last Code
	Unshifted   map[Code]rune
	Shifted     map[Code]rune

	gen atomic.Uint64
}

func (s *StaticLayout) KeyRange() (Code, Code) { return s.First, s.Last }

func (s *StaticLayout) CharForKey(code Code, shifted bool) (rune, bool) {
	m := s.Unshifted
	if shifted {
		m = s.Shifted
	}
	ch, ok := m[code]
	return ch, ok
}

func (s *StaticLayout) Generation() uint64 { return s.gen.Load() }

// Bump marks the layout as changed.
func (s *StaticLayout) Bump() { s.gen.Add(1) }
