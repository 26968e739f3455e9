// Package logging provides the structured logger shared by all components.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog with the level and format configuration used across the
// service. All call sites use the slog key-value style:
//
//	logger.Info("workflow executed", "workflow_id", id, "status", status)
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger writing text to stderr. The level comes from
// the LOG_LEVEL environment variable (debug, info, warn, error) and
// defaults to info. Setting LOG_FORMAT=json switches to JSON output.
func NewLogger() *Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// With returns a Logger that includes the given attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
