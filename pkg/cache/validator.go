package cache

import (
	"encoding/json"
	"strings"

	"lumen-hq/relay/pkg/oai"
)

// errorSignatures are substrings that mark a completion as an upstream
// failure that leaked into a 200 body. Matched case-insensitively against
// the full response text.
var errorSignatures = []string{
	"internal server error",
	"service unavailable",
	"upstream connect error",
	"rate limit exceeded",
	"model is overloaded",
	"quota exceeded",
}

// admissible reports whether a completion is worth caching and serving.
// Rejected: empty responses, responses whose text matches a known error
// signature, and responses whose body is a JSON error object or carries an
// HTTP-style failure status code.
func admissible(resp *oai.ChatCompletionResponse) bool {
	if resp == nil || len(resp.Choices) == 0 {
		return false
	}
	msg := resp.Choices[0].Message
	text := msg.ContentText()
	if text == "" && len(msg.ToolCalls) == 0 {
		return false
	}

	lower := strings.ToLower(text)
	for _, sig := range errorSignatures {
		if strings.Contains(lower, sig) {
			return false
		}
	}
	return !looksLikeErrorObject(text)
}

// looksLikeErrorObject detects a JSON error payload masquerading as
// content: an object with an "error" member, or a "status_code" at or
// above 400.
func looksLikeErrorObject(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var body struct {
		Error      json.RawMessage `json:"error"`
		StatusCode int             `json:"status_code"`
	}
	if err := json.Unmarshal([]byte(trimmed), &body); err != nil {
		return false
	}
	if len(body.Error) > 0 && string(body.Error) != "null" {
		return true
	}
	return body.StatusCode >= 400
}
