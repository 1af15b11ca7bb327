// Package osutils checks and prepares the host OS for input injection and
// remote control.
package osutils

import (
	"strings"

	"go.uber.org/zap"
)

// Privileges describes what the current process may do.
type Privileges struct {
	// Admin is true for an elevated (Windows) or root (unix) process.
	Admin bool
	// InputTrusted is false when the OS will silently drop injected input.
	InputTrusted bool
	// Notes explain missing permissions and how to grant them.
	Notes []string
}

// Check inspects the current process.
func Check() Privileges {
	p := Privileges{Admin: IsAdmin()}
	p.InputTrusted, p.Notes = inputTrusted(p.Admin)
	return p
}

// Log writes p to logger, warning about every note.
func (p Privileges) Log(logger *zap.Logger) {
	logger.Info("process privileges", zap.Bool("admin", p.Admin), zap.Bool("input_trusted", p.InputTrusted))
	for _, n := range p.Notes {
		logger.Warn(n)
	}
}

func (p Privileges) String() string {
	var b strings.Builder
	b.WriteString("admin=")
	b.WriteString(yesNo(p.Admin))
	b.WriteString(" input_trusted=")
	b.WriteString(yesNo(p.InputTrusted))
	for _, n := range p.Notes {
		b.WriteString("\n  ")
		b.WriteString(n)
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
