// Package logging builds the one process-wide structured logger every
// component logs through (component O): slog-shaped, switched between
// text and JSON handlers and between info/debug/warn-only levels by the
// CLI's --verbose/--quiet/--json flags.
package logging

import (
	"log/slog"
	"os"
)

// Options configures the process-wide logger.
type Options struct {
	Verbose bool
	Quiet   bool
	JSON    bool
}

// New builds a *slog.Logger per opts, writing to stderr so stdout stays
// free for command output (export paths, agent listings, the dashboard).
func New(opts Options) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case opts.Verbose:
		level = slog.LevelDebug
	case opts.Quiet:
		level = slog.LevelWarn
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	return slog.New(handler)
}
