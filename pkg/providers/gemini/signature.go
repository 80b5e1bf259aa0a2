package gemini

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// signatureTTL matches the window inside which a tool roundtrip is expected
// to complete.
const signatureTTL = time.Hour

const signatureKeyPrefix = "google_signature:"

// signatureComment carries a thought signature through clients that persist
// only message text. The comment is invisible in rendered output.
var signatureComment = regexp.MustCompile(`\s*<!-- google_signature: ([A-Za-z0-9+/=_-]+) -->`)

// signatures persists thought signatures keyed by the tool call id they
// were issued with, so the follow-up turn can reattach them.
type signatures struct {
	store  StateStore
	logger *slog.Logger
}

func (s *signatures) save(ctx context.Context, toolCallID, signature string) {
	if signature == "" {
		return
	}
	if err := s.store.Set(ctx, signatureKeyPrefix+toolCallID, signature, signatureTTL); err != nil {
		s.logger.Warn("failed to persist thought signature", "tool_call_id", toolCallID, "error", err)
	}
}

func (s *signatures) load(ctx context.Context, toolCallID string) string {
	signature, ok, err := s.store.Get(ctx, signatureKeyPrefix+toolCallID)
	if err != nil {
		s.logger.Warn("failed to load thought signature", "tool_call_id", toolCallID, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return signature
}

// embedSignature appends the signature comment to text.
func embedSignature(text, signature string) string {
	if signature == "" {
		return text
	}
	return text + "\n<!-- google_signature: " + signature + " -->"
}

// extractSignature pulls a signature comment out of text, returning the
// signature (or "") and the cleaned text.
func extractSignature(text string) (signature, cleaned string) {
	match := signatureComment.FindStringSubmatch(text)
	if match == nil {
		return "", text
	}
	return match[1], strings.TrimSpace(signatureComment.ReplaceAllString(text, ""))
}
