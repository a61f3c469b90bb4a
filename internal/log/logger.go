// Package log configures the plugin's structured logger. Records go to stderr
// because stdout carries protocol traffic to the launcher.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

var (
	once   sync.Once
	logger *slog.Logger
)

// ParseLevel maps a config value to a slog level. Unknown values fall back to WARN.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Setup initializes the global logger. format is "json", "text", or "" to
// pick text for an interactive terminal and JSON otherwise.
func Setup(level, format string) {
	once.Do(func() {
		logger = newLogger(os.Stderr, ParseLevel(level), format, isatty.IsTerminal(os.Stderr.Fd()))
		slog.SetDefault(logger)
	})
}

func newLogger(w io.Writer, level slog.Level, format string, terminal bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	useText := terminal
	switch strings.ToLower(format) {
	case "json":
		useText = false
	case "text":
		useText = true
	}

	if useText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Get returns the configured logger, or a default one if Setup hasn't been called.
func Get() *slog.Logger {
	Setup("WARN", "")
	return logger
}

// WithComponent returns a logger with the component field set.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithRequest returns a logger tagged with a launcher request.
func WithRequest(l *slog.Logger, requestType string, requestID uint64) *slog.Logger {
	return l.With(slog.String("request_type", requestType), slog.Uint64("request_id", requestID))
}

// WithLaunch returns a logger with the launch_id field set.
func WithLaunch(l *slog.Logger, id string) *slog.Logger {
	return l.With(slog.String("launch_id", id))
}
