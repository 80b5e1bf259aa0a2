package providers

import (
	"reflect"
	"testing"

	"lumen-hq/relay/pkg/oai"
)

func TestNormalizeDropsEmptyMessages(t *testing.T) {
	in := []oai.Message{
		{Role: oai.RoleUser, Content: "hello"},
		{Role: oai.RoleAssistant, Content: "   "},
		{Role: oai.RoleAssistant, Content: ""},
		{Role: oai.RoleUser, Content: "still there?"},
	}
	got := NormalizeMessages(in)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2: %+v", len(got), got)
	}
}

func TestNormalizeKeepsToolCallMessages(t *testing.T) {
	in := []oai.Message{
		{Role: oai.RoleAssistant, Content: nil, ToolCalls: []oai.ToolCall{{ID: "call_1", Type: oai.ToolTypeFunction}}},
		{Role: oai.RoleTool, Content: "result", ToolCallID: "call_1"},
	}
	got := NormalizeMessages(in)
	if len(got) != 2 {
		t.Fatalf("tool-call messages dropped: %+v", got)
	}
}

func TestNormalizeMergesConsecutiveSameRole(t *testing.T) {
	in := []oai.Message{
		{Role: oai.RoleUser, Content: "part one"},
		{Role: oai.RoleUser, Content: "part two"},
		{Role: oai.RoleAssistant, Content: "reply"},
	}
	got := NormalizeMessages(in)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2: %+v", len(got), got)
	}
	if got[0].ContentText() != "part one\n\npart two" {
		t.Fatalf("merged content = %q", got[0].ContentText())
	}
}

func TestNormalizeDoesNotMergeToolResults(t *testing.T) {
	in := []oai.Message{
		{Role: oai.RoleTool, Content: "r1", ToolCallID: "call_1"},
		{Role: oai.RoleTool, Content: "r2", ToolCallID: "call_2"},
	}
	if got := NormalizeMessages(in); len(got) != 2 {
		t.Fatalf("tool results were merged: %+v", got)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := []oai.Message{
		{Role: oai.RoleUser, Content: "a"},
		{Role: oai.RoleUser, Content: "b"},
		{Role: oai.RoleAssistant, Content: ""},
		{Role: oai.RoleAssistant, Content: "c"},
	}
	once := NormalizeMessages(in)
	twice := NormalizeMessages(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}
