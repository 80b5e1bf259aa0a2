package oai

import "strings"

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// ToolTypeFunction is the only tool type currently defined by the wire format.
const ToolTypeFunction = "function"

// Message is a single conversation message. Content is either a plain string
// or a list of content parts ([]any of maps with a "type" discriminator) for
// multimodal input; use ContentText and ContentParts to interpret it.
type Message struct {
	// Role identifies the message sender (system, user, assistant, tool).
	Role string `json:"role"`

	// Content is the message payload: string or content-part list.
	Content any `json:"content"`

	// Name optionally names the sender, or the tool for tool-role messages.
	Name string `json:"name,omitempty"`

	// ToolCalls carries function calls made by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID references the tool call this tool-role message answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ContentText flattens the message content to plain text. Content-part lists
// contribute their text parts joined by newlines; non-text parts are dropped.
func (m *Message) ContentText() string {
	return ContentToText(m.Content)
}

// ContentEmpty reports whether the message carries no usable content. A
// message holding tool calls is never empty.
func (m *Message) ContentEmpty() bool {
	if len(m.ToolCalls) > 0 {
		return false
	}
	switch c := m.Content.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(c) == ""
	case []any:
		return len(c) == 0
	}
	return false
}

// ContentToText flattens a content value (string or part list) to plain text.
func ContentToText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var parts []string
		for _, item := range c {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if part["type"] == "text" {
				if text, ok := part["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// ContentToParts converts a content value to part-list form. Strings become a
// single text part.
func ContentToParts(content any) []any {
	switch c := content.(type) {
	case string:
		return []any{map[string]any{"type": "text", "text": c}}
	case []any:
		return c
	}
	return nil
}

// ToolCall is a complete function call requested by the model.
type ToolCall struct {
	// Index orders parallel tool calls within one response.
	Index int `json:"index,omitempty"`

	// ID uniquely identifies this call across the conversation.
	ID string `json:"id"`

	// Type is always "function".
	Type string `json:"type"`

	// Function holds the call target and arguments.
	Function FunctionCall `json:"function"`
}

// FunctionCall is the target and JSON-encoded arguments of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a callable function to the model.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function and its JSON Schema.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ResponseFormat constrains the model output shape ("text" or "json_object").
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionRequest is the inbound request body of
// POST /v1/chat/completions. Model names a gateway alias, never a concrete
// provider model.
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Stream            bool            `json:"stream,omitempty"`
	Temperature       *float64        `json:"temperature,omitempty"`
	TopP              *float64        `json:"top_p,omitempty"`
	MaxTokens         *int            `json:"max_tokens,omitempty"`
	Stop              []string        `json:"stop,omitempty"`
	Tools             []Tool          `json:"tools,omitempty"`
	ToolChoice        any             `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool           `json:"parallel_tool_calls,omitempty"`
	ResponseFormat    *ResponseFormat `json:"response_format,omitempty"`
	User              string          `json:"user,omitempty"`
}

// Usage tracks token consumption for a completed request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChoice is one completed alternative in a unary response.
type ChatCompletionChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatCompletionResponse is the unary response body of
// POST /v1/chat/completions.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// EmbeddingRequest is the inbound body of POST /v1/embeddings.
type EmbeddingRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// Embedding is one embedding vector in an EmbeddingResponse.
type Embedding struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingResponse is the response body of POST /v1/embeddings.
type EmbeddingResponse struct {
	Object string      `json:"object"`
	Model  string      `json:"model"`
	Data   []Embedding `json:"data"`
	Usage  Usage       `json:"usage"`
}

// SpeechRequest is the inbound body of POST /v1/audio/speech.
type SpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// TranscriptionResponse is the response body of POST /v1/audio/transcriptions.
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// ModelCard describes one runnable alias in GET /v1/models.
type ModelCard struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`

	// IsAgent reports whether the alias dispatches to a reasoning driver.
	IsAgent bool `json:"is_agent"`

	// ReasoningMode names the driver pattern for agent aliases.
	ReasoningMode string `json:"reasoning_mode,omitempty"`
}

// ModelList is the response body of GET /v1/models.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelCard `json:"data"`
}
