// Package logging configures the shared slog.Logger used across the library
// engine. There is no process-wide default; callers inject a *slog.Logger
// (or accept the one New returns) per the "no global state" design note.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options configures the logger returned by New.
type Options struct {
	// Writer receives log output; defaults to os.Stderr.
	Writer io.Writer
	// Level sets the minimum level emitted; defaults to slog.LevelInfo.
	Level slog.Level
	// JSON selects JSON handler output instead of text.
	JSON bool
}

// New builds a *slog.Logger per Options. Zero-value Options is a sane
// text logger on stderr at Info level.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything; useful for tests and for
// components that were not given a logger explicitly.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
