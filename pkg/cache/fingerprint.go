package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"lumen-hq/relay/pkg/oai"
)

// fingerprintFields is the canonical projection of a request. Only fields
// that change the completion participate; stream flags, user tags, and
// anything else cosmetic stay out so equivalent requests collide.
type fingerprintFields struct {
	Alias          string              `json:"alias"`
	Messages       []oai.Message       `json:"messages"`
	Temperature    *float64            `json:"temperature,omitempty"`
	TopP           *float64            `json:"top_p,omitempty"`
	MaxTokens      *int                `json:"max_tokens,omitempty"`
	Stop           []string            `json:"stop,omitempty"`
	Tools          []oai.Tool          `json:"tools,omitempty"`
	ToolChoice     any                 `json:"tool_choice,omitempty"`
	ResponseFormat *oai.ResponseFormat `json:"response_format,omitempty"`
}

// Fingerprint derives the cache key for a request routed through alias.
// encoding/json emits struct fields in declaration order and map keys
// sorted, so the serialization is deterministic.
func Fingerprint(alias string, req oai.ChatCompletionRequest) string {
	canonical, err := json.Marshal(fingerprintFields{
		Alias:          alias,
		Messages:       req.Messages,
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		MaxTokens:      req.MaxTokens,
		Stop:           req.Stop,
		Tools:          req.Tools,
		ToolChoice:     req.ToolChoice,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		// Message content is decoded JSON; re-encoding it cannot fail.
		// Fall back to a key that will simply never match.
		return ""
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
