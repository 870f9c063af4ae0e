package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
)

// New builds the process logger. Standard library log output is routed
// through the same writer so third-party packages end up in one stream.
func New(level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lg := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	log.SetOutput(w)
	return lg
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
