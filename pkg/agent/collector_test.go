package agent

import (
	"strings"
	"testing"

	"lumen-hq/relay/pkg/oai"
)

func reasoningDelta(text string) oai.ChatCompletionChunk {
	return oai.ReasoningChunk("m", text)
}

func contentDelta(text string) oai.ChatCompletionChunk {
	return oai.TextChunk("m", text)
}

func TestCollectorThinkBracketing(t *testing.T) {
	var out strings.Builder
	col := newCollector("agent", func(chunk oai.ChatCompletionChunk) error {
		out.WriteString(chunk.Choices[0].Delta.Content)
		return nil
	})

	for _, chunk := range []oai.ChatCompletionChunk{
		reasoningDelta("let me "),
		reasoningDelta("think"),
		contentDelta("the answer"),
		contentDelta(" is 42"),
	} {
		if err := col.feed(chunk); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	col.closeThink()

	want := "<think>let me think</think>\n\nthe answer is 42"
	if out.String() != want {
		t.Fatalf("emitted = %q, want %q", out.String(), want)
	}
	if col.content.String() != "the answer is 42" {
		t.Fatalf("history content = %q", col.content.String())
	}
}

func TestCollectorClosesThinkAtStreamEnd(t *testing.T) {
	var out strings.Builder
	col := newCollector("agent", func(chunk oai.ChatCompletionChunk) error {
		out.WriteString(chunk.Choices[0].Delta.Content)
		return nil
	})
	col.feed(reasoningDelta("only reasoning"))
	col.closeThink()

	if !strings.HasSuffix(out.String(), "</think>\n\n") {
		t.Fatalf("emitted = %q", out.String())
	}
}

func TestCollectorAssemblesToolCallDeltas(t *testing.T) {
	col := newCollector("agent", func(oai.ChatCompletionChunk) error { return nil })

	feed := func(tc oai.ToolCallDelta) {
		col.feed(oai.ChatCompletionChunk{Choices: []oai.ChunkChoice{{
			Delta: oai.Delta{ToolCalls: []oai.ToolCallDelta{tc}},
		}}})
	}

	// Two interleaved calls, arguments split across fragments.
	feed(oai.ToolCallDelta{Index: 0, ID: "call_a", Type: oai.ToolTypeFunction,
		Function: &oai.FunctionCallDelta{Name: "get_weather", Arguments: `{"ci`}})
	feed(oai.ToolCallDelta{Index: 1, ID: "call_b", Type: oai.ToolTypeFunction,
		Function: &oai.FunctionCallDelta{Name: "get_time", Arguments: `{}`}})
	feed(oai.ToolCallDelta{Index: 0,
		Function: &oai.FunctionCallDelta{Arguments: `ty":"Oslo"}`}})

	calls := col.toolCalls()
	if len(calls) != 2 {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].ID != "call_a" || calls[0].Function.Arguments != `{"city":"Oslo"}` {
		t.Fatalf("call 0 = %+v", calls[0])
	}
	if calls[1].Function.Name != "get_time" {
		t.Fatalf("call 1 = %+v", calls[1])
	}
}

func TestCollectorAssemblesSplitToolName(t *testing.T) {
	col := newCollector("agent", func(oai.ChatCompletionChunk) error { return nil })

	feed := func(tc oai.ToolCallDelta) {
		col.feed(oai.ChatCompletionChunk{Choices: []oai.ChunkChoice{{
			Delta: oai.Delta{ToolCalls: []oai.ToolCallDelta{tc}},
		}}})
	}

	// Some providers split the function name across deltas too.
	feed(oai.ToolCallDelta{Index: 0, ID: "call_a", Type: oai.ToolTypeFunction,
		Function: &oai.FunctionCallDelta{Name: "smart", Arguments: `{"query":"`}})
	feed(oai.ToolCallDelta{Index: 0,
		Function: &oai.FunctionCallDelta{Name: "_search", Arguments: `foo"}`}})

	calls := col.toolCalls()
	if len(calls) != 1 {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].Function.Name != "smart_search" {
		t.Fatalf("name = %q, want smart_search", calls[0].Function.Name)
	}
	if calls[0].Function.Arguments != `{"query":"foo"}` {
		t.Fatalf("arguments = %q", calls[0].Function.Arguments)
	}
}
