package telemetry

import (
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// NewLogger returns a text logger writing to w. Debug lowers the level from
// info to debug.
func NewLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewRunID returns an identifier attached to every log line and span of a run.
func NewRunID() string {
	return uuid.NewString()
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
