// Package logger provides the configured zerolog logger shared by all
// components.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON to stderr, tagged with the component name.
func New(component string) zerolog.Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewWithWriter returns a logger writing to w. Tests pass io.Discard.
func NewWithWriter(component string, w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().
		Str("component", component).
		Timestamp().
		Logger()
}

// Nop returns a disabled logger for components that were not given one.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
