// Package guestlog is the "guest-error channel" spec.md §7 describes
// for internal invariant violations: conditions that are logged and
// turn the offending instruction into a no-op, but never crash the
// core. It wraps the stdlib log.Logger the same way the teacher's
// packages reach for log.Printf directly rather than a logging
// framework.
package guestlog

import (
	"log"
	"os"
)

// Logger is the guest-error channel.
type Logger struct {
	l *log.Logger
}

// Default writes to standard error with an "lvzcore: " prefix and the
// standard date/time flags.
func Default() *Logger {
	return &Logger{l: log.New(os.Stderr, "lvzcore: ", log.LstdFlags)}
}

// New wraps an arbitrary *log.Logger, e.g. one the surrounding machine
// already owns.
func New(l *log.Logger) *Logger {
	return &Logger{l: l}
}

// Violation logs an internal invariant violation. The caller is
// responsible for making the instruction a no-op; Violation only
// records that it happened.
func (g *Logger) Violation(format string, args ...any) {
	if g == nil || g.l == nil {
		return
	}

	g.l.Printf("invariant violation: "+format, args...)
}
