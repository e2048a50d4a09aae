package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the process-wide logger. Output goes to stderr so the stdio
// MCP transport keeps stdout clean for protocol frames.
func New(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

// Component returns a child logger tagged with its component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	return l.With("component", name)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
