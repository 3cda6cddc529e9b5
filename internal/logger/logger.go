// Package logger provides structured logging setup for tokdash.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/zhaobenny/tokdash/internal/config"
)

// New creates a *slog.Logger from the given Logging config, writing to stderr.
func New(cfg config.Logging) *slog.Logger {
	return NewWriter(os.Stderr, cfg)
}

// NewWriter creates a *slog.Logger writing to w. Format "json" selects the
// JSON handler; anything else writes logfmt-style text.
func NewWriter(w io.Writer, cfg config.Logging) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseLevel converts a string log level to slog.Level.
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
