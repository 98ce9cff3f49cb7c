package common

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Loggable interface for types that support custom logging.
type Loggable interface {
	SetLogger(logger *slog.Logger)
	GetLogger() *slog.Logger
}

// LoggerMixin provides common logging functionality.
type LoggerMixin struct {
	Logger *slog.Logger
}

// NewLoggerMixin creates a new logger mixin with default logger.
func NewLoggerMixin() LoggerMixin {
	return LoggerMixin{
		Logger: slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (l *LoggerMixin) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.Logger = logger
	}
}

// GetLogger returns the logger.
func (l *LoggerMixin) GetLogger() *slog.Logger {
	if l.Logger == nil {
		l.Logger = slog.Default()
	}
	return l.Logger
}

// NewLogger builds a slog logger writing to stderr.
// format is "json" or "text"; unknown levels fall back to info.
func NewLogger(level, format string) *slog.Logger {
	return NewLoggerTo(os.Stderr, level, format)
}

// NewLoggerTo is NewLogger with an explicit writer.
func NewLoggerTo(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
