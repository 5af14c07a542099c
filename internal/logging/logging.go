// Package logging configures the process-wide structured logger. Output
// goes to stderr so stdout stays clean for tables and JSON.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// DefaultLevel is used when neither flag nor environment set a level.
const DefaultLevel = "info"

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup installs a stderr logger as the slog default. An empty name falls
// back to SKILLPROBE_LOG_LEVEL, then DefaultLevel.
func Setup(name string) (*slog.Logger, error) {
	if name == "" {
		name = os.Getenv("SKILLPROBE_LOG_LEVEL")
	}
	if name == "" {
		name = DefaultLevel
	}
	level, err := ParseLevel(name)
	if err != nil {
		return nil, err
	}
	logger := New(os.Stderr, level)
	slog.SetDefault(logger)
	return logger, nil
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
