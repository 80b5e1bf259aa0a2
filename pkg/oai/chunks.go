package oai

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ObjectChatCompletionChunk is the object tag on streamed chunks.
const ObjectChatCompletionChunk = "chat.completion.chunk"

// ToolCallDelta is an incremental tool-call fragment in a streamed delta.
// Fragments carrying the same Index belong to the same call; the ID and
// function name arrive on the first fragment and the arguments accumulate
// across the rest.
type ToolCallDelta struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function *FunctionCallDelta `json:"function,omitempty"`
}

// FunctionCallDelta is the function fragment of a ToolCallDelta.
type FunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Delta is the incremental payload of one streamed choice.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`

	// ReasoningContent carries chain-of-thought text. Adapters translate
	// provider-native reasoning idioms into this field.
	ReasoningContent string `json:"reasoning_content,omitempty"`

	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ChunkChoice is one choice in a streamed chunk.
type ChunkChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is one SSE event in a streamed chat completion. All
// provider adapters emit this shape regardless of the upstream wire format.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// Empty reports whether the chunk carries no deltas and no finish reason.
func (c *ChatCompletionChunk) Empty() bool {
	for _, choice := range c.Choices {
		d := choice.Delta
		if d.Content != "" || d.ReasoningContent != "" || len(d.ToolCalls) > 0 {
			return false
		}
		if choice.FinishReason != "" {
			return false
		}
	}
	return len(c.Choices) == 0
}

// FinishReason returns the finish reason of the first choice, if any.
func (c *ChatCompletionChunk) FinishReason() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].FinishReason
}

// NewChunkID returns a fresh chunk identifier in the conventional
// "chatcmpl-" form.
func NewChunkID() string {
	return "chatcmpl-" + uuid.NewString()
}

// TextChunk builds a content-only chunk for the given model. Drivers use it
// to synthesize output that did not originate upstream (waiting messages,
// think brackets, observation echoes).
func TextChunk(model, content string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      NewChunkID(),
		Object:  ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChunkChoice{{Delta: Delta{Content: content}}},
	}
}

// ReasoningChunk builds a reasoning-content-only chunk.
func ReasoningChunk(model, reasoning string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      NewChunkID(),
		Object:  ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChunkChoice{{Delta: Delta{ReasoningContent: reasoning}}},
	}
}

// FinishChunk builds a terminal chunk carrying only a finish reason.
func FinishChunk(model, reason string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      NewChunkID(),
		Object:  ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChunkChoice{{FinishReason: reason}},
	}
}

// NewToolCallID returns a fresh tool-call identifier in the conventional
// "call_" form.
func NewToolCallID() string {
	return fmt.Sprintf("call_%s", uuid.NewString())
}
