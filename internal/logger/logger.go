// Package logger provides structured logging for postraft-facade.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global logger instance
var Logger *slog.Logger

// Format selects the slog handler used by Init.
type Format string

const (
	// FormatJSON is used by the long-running facade server.
	FormatJSON Format = "json"
	// FormatText is used by interactive CLI commands.
	FormatText Format = "text"
)

// Options configures Init. Zero values fall back to LOG_LEVEL and stdout.
type Options struct {
	Level  string
	Format Format
	Output io.Writer
}

// Init initializes the global logger with trace and request context support
func Init(opts Options) *slog.Logger {
	if opts.Level == "" {
		opts.Level = os.Getenv("LOG_LEVEL")
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	level := parseLevel(opts.Level)

	handlerOpts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if opts.Format == FormatText {
		inner = slog.NewTextHandler(opts.Output, handlerOpts)
	} else {
		inner = slog.NewJSONHandler(opts.Output, handlerOpts)
	}

	Logger = slog.New(NewTraceContextHandler(inner))
	slog.SetDefault(Logger)

	Logger.Debug("Logger initialized", "level", level.String(), "format", string(opts.Format))

	return Logger
}

func parseLevel(level string) slog.Level {
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
