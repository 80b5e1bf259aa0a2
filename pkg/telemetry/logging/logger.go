// Package logging configures structured log output and masks credential
// material before it reaches any handler.
package logging

import (
	"io"
	"log/slog"
	"os"

	"lumen-hq/relay/pkg/config"
)

// New builds the root logger from configuration. Every record passes through
// the redactor so an API key that leaks into a message or attribute is
// masked before it is written.
func New(cfg config.LoggingConfig, redactor *Redactor) *slog.Logger {
	return NewWithWriter(cfg, redactor, os.Stdout)
}

// NewWithWriter is New with an explicit output, for tests.
func NewWithWriter(cfg config.LoggingConfig, redactor *Redactor, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	if redactor != nil {
		handler = &redactingHandler{inner: handler, redactor: redactor}
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
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
