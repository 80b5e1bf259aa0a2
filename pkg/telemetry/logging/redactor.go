package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Redactor masks registered secrets in log output. It is an append-only
// registry: the key pool registers every credential it loads, and log
// records are scanned for exact occurrences on the hot path under a read
// lock. Secrets are never removed; a retired key must stay masked in any
// log line that still mentions it.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string
}

// NewRedactor builds an empty Redactor.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// Register adds a secret to mask. Short strings are ignored: masking one or
// two characters would mangle ordinary log text.
func (r *Redactor) Register(secret string) {
	if len(secret) < 6 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets = append(r.secrets, secret)
}

// Mask replaces every registered secret in s with a redaction marker that
// keeps the first four characters for identification.
func (r *Redactor) Mask(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, secret := range r.secrets {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, secret[:4]+"***")
		}
	}
	return s
}

// redactingHandler wraps a slog.Handler and masks secrets in the message
// and every string attribute value.
type redactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, h.redactor.Mask(record.Message), record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(h.maskAttr(attr))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		masked[i] = h.maskAttr(attr)
	}
	return &redactingHandler{inner: h.inner.WithAttrs(masked), redactor: h.redactor}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

func (h *redactingHandler) maskAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindString {
		return slog.String(attr.Key, h.redactor.Mask(attr.Value.String()))
	}
	return attr
}
