package agent

import (
	"sort"
	"strings"

	"lumen-hq/relay/pkg/oai"
)

// collector consumes a completion stream for the native driver: content is
// forwarded to the client, reasoning is re-emitted as visible content
// bracketed in <think> tags, and tool-call deltas are assembled by index
// into complete calls.
type collector struct {
	agent string
	emit  Emit

	inThink bool
	content strings.Builder
	calls   map[int]*oai.ToolCall
	finish  string
}

func newCollector(agent string, emit Emit) *collector {
	return &collector{
		agent: agent,
		emit:  emit,
		calls: make(map[int]*oai.ToolCall),
	}
}

// feed processes one upstream chunk.
func (c *collector) feed(chunk oai.ChatCompletionChunk) error {
	if len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.ReasoningContent != "" {
		if !c.inThink {
			c.inThink = true
			if err := c.emit(textChunk(c.agent, "<think>")); err != nil {
				return err
			}
		}
		if err := c.emit(textChunk(c.agent, delta.ReasoningContent)); err != nil {
			return err
		}
	}

	if delta.Content != "" {
		if err := c.closeThink(); err != nil {
			return err
		}
		c.content.WriteString(delta.Content)
		if err := c.emit(textChunk(c.agent, delta.Content)); err != nil {
			return err
		}
	}

	for _, tc := range delta.ToolCalls {
		c.accumulate(tc)
	}
	if choice.FinishReason != "" {
		c.finish = choice.FinishReason
	}
	return nil
}

// closeThink closes an open <think> bracket. Called at the reasoning to
// content transition and again at stream end for reasoning-only turns.
func (c *collector) closeThink() error {
	if !c.inThink {
		return nil
	}
	c.inThink = false
	return c.emit(textChunk(c.agent, "</think>\n\n"))
}

// accumulate merges one tool-call fragment. The id arrives on the first
// fragment for an index; name and argument text accumulate across the
// rest, since providers are free to split either across deltas.
func (c *collector) accumulate(tc oai.ToolCallDelta) {
	call, ok := c.calls[tc.Index]
	if !ok {
		call = &oai.ToolCall{Index: tc.Index, Type: oai.ToolTypeFunction}
		c.calls[tc.Index] = call
	}
	if tc.ID != "" {
		call.ID = tc.ID
	}
	if tc.Function != nil {
		call.Function.Name += tc.Function.Name
		call.Function.Arguments += tc.Function.Arguments
	}
}

// toolCalls returns the assembled calls in index order. Calls missing an
// id get a synthesized one so tool results can reference them.
func (c *collector) toolCalls() []oai.ToolCall {
	if len(c.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(c.calls))
	for i := range c.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]oai.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		call := *c.calls[i]
		if call.ID == "" {
			call.ID = oai.NewToolCallID()
		}
		out = append(out, call)
	}
	return out
}
