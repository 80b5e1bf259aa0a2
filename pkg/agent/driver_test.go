package agent

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/engine"
	"lumen-hq/relay/pkg/keypool"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
	"lumen-hq/relay/pkg/rotation"
	"lumen-hq/relay/pkg/router"
	"lumen-hq/relay/pkg/session"
	"lumen-hq/relay/pkg/tools"
)

// streamScript is one scripted ChatStream outcome: either an open error or
// a chunk sequence ending in a clean EOF.
type streamScript struct {
	err    error
	chunks []oai.ChatCompletionChunk
}

// chatScript is one scripted unary outcome.
type chatScript struct {
	err  error
	text string
}

// scriptedProvider replays scripts in call order and records every request
// body it saw.
type scriptedProvider struct {
	mu       sync.Mutex
	streams  []streamScript
	chats    []chatScript
	requests []oai.ChatCompletionRequest
}

func (p *scriptedProvider) Name() string { return "fake" }

func (p *scriptedProvider) Chat(_ context.Context, req providers.Request) (*oai.ChatCompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req.Body)
	if len(p.chats) == 0 {
		return nil, &providers.UpstreamError{Provider: "fake", StatusCode: 500, Message: "script exhausted"}
	}
	script := p.chats[0]
	p.chats = p.chats[1:]
	if script.err != nil {
		return nil, script.err
	}
	return &oai.ChatCompletionResponse{
		Choices: []oai.ChatCompletionChoice{{
			Message:      oai.Message{Role: oai.RoleAssistant, Content: script.text},
			FinishReason: oai.FinishReasonStop,
		}},
	}, nil
}

func (p *scriptedProvider) ChatStream(_ context.Context, req providers.Request) (providers.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req.Body)
	if len(p.streams) == 0 {
		return nil, &providers.UpstreamError{Provider: "fake", StatusCode: 500, Message: "script exhausted"}
	}
	script := p.streams[0]
	p.streams = p.streams[1:]
	if script.err != nil {
		return nil, script.err
	}
	return &scriptStream{chunks: script.chunks}, nil
}

type scriptStream struct {
	chunks []oai.ChatCompletionChunk
}

func (s *scriptStream) Recv() (oai.ChatCompletionChunk, error) {
	if len(s.chunks) == 0 {
		return oai.ChatCompletionChunk{}, io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func (s *scriptStream) Close() error { return nil }

func newDeps(t *testing.T, provider *scriptedProvider) Deps {
	t.Helper()
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"fake": {Type: config.ProviderTypeOpenAI, BaseURL: "https://fake.invalid"},
		},
		Profiles: map[string]config.ProfileConfig{
			"fake-main": {Provider: "fake", Models: []string{"m"}},
		},
		Aliases: map[string]config.AliasConfig{
			"worker": {Chain: []string{"fake-main"}, MainLength: 1},
		},
	}

	pool := keypool.NewManager(keypool.Options{})
	pool.AddKeys("fake", []string{"k1"})

	eng := engine.New(engine.Options{
		Providers: map[string]providers.Provider{"fake": provider},
		Pool:      pool,
		Models:    rotation.NewModelRotator(),
	})

	echo := &tools.Func{
		ToolName:        "echo_message",
		ToolDescription: "Echo the message back.",
		ToolParameters:  map[string]any{"type": "object"},
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return msg, nil
		},
	}

	return Deps{
		Engine:  eng,
		Router:  router.New(cfg, rotation.NewIndex(nil, nil), nil),
		Tools:   tools.NewOrchestrator(tools.OrchestratorOptions{Natives: []tools.Native{echo}}),
		Session: session.NewStore(nil, session.Options{}),
	}
}

func runOf(cfg config.AgentConfig) Run {
	cfg.Model = "worker"
	return Run{
		Agent:    "assistant",
		Config:   cfg,
		Messages: []oai.Message{{Role: oai.RoleUser, Content: "go"}},
	}
}

// capture collects emitted content and finish reasons.
type capture struct {
	content strings.Builder
	finish  []string
}

func (c *capture) emit(chunk oai.ChatCompletionChunk) error {
	for _, choice := range chunk.Choices {
		c.content.WriteString(choice.Delta.Content)
		if choice.FinishReason != "" {
			c.finish = append(c.finish, choice.FinishReason)
		}
	}
	return nil
}

func toolCallChunk(name, args string) oai.ChatCompletionChunk {
	return oai.ChatCompletionChunk{Choices: []oai.ChunkChoice{{
		Delta: oai.Delta{ToolCalls: []oai.ToolCallDelta{{
			Index: 0, ID: "call_1", Type: oai.ToolTypeFunction,
			Function: &oai.FunctionCallDelta{Name: name, Arguments: args},
		}}},
	}}}
}

func TestNativeDriverToolLoop(t *testing.T) {
	provider := &scriptedProvider{streams: []streamScript{
		{chunks: []oai.ChatCompletionChunk{
			oai.ReasoningChunk("m", "I should echo"),
			toolCallChunk("echo_message", `{"message":"ping"}`),
			oai.FinishChunk("m", oai.FinishReasonToolCalls),
		}},
		{chunks: []oai.ChatCompletionChunk{
			oai.TextChunk("m", "the echo said ping"),
		}},
	}}
	driver, err := NewDriver(config.ReasoningModeNative, newDeps(t, provider))
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	var out capture
	if err := driver.Execute(context.Background(), runOf(config.AgentConfig{}), out.emit); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	text := out.content.String()
	if !strings.Contains(text, "<think>I should echo</think>") {
		t.Fatalf("reasoning not bracketed: %q", text)
	}
	if !strings.Contains(text, "the echo said ping") {
		t.Fatalf("final answer missing: %q", text)
	}
	if len(out.finish) != 1 || out.finish[0] != oai.FinishReasonStop {
		t.Fatalf("finish = %v", out.finish)
	}

	// The second upstream request carries the tool roundtrip.
	second := provider.requests[1]
	var sawToolResult bool
	for _, msg := range second.Messages {
		if msg.Role == oai.RoleTool && msg.ToolCallID == "call_1" && msg.ContentText() == "ping" {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Fatalf("tool result not in history: %+v", second.Messages)
	}
}

func TestNativeDriverIterationLimit(t *testing.T) {
	loop := streamScript{chunks: []oai.ChatCompletionChunk{
		toolCallChunk("echo_message", `{"message":"again"}`),
		oai.FinishChunk("m", oai.FinishReasonToolCalls),
	}}
	provider := &scriptedProvider{streams: []streamScript{loop, loop, loop}}
	driver, _ := NewDriver(config.ReasoningModeNative, newDeps(t, provider))

	var out capture
	err := driver.Execute(context.Background(),
		runOf(config.AgentConfig{MaxIterations: 2}), out.emit)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.finish) != 1 || out.finish[0] != oai.FinishReasonLength {
		t.Fatalf("finish = %v", out.finish)
	}
	if !strings.Contains(out.content.String(), "iteration limit") {
		t.Fatalf("limit notice missing: %q", out.content.String())
	}
}

func TestNativeDriverRecoversRejectedToolCall(t *testing.T) {
	provider := &scriptedProvider{streams: []streamScript{
		{err: &providers.BadRequestError{
			Provider: "fake",
			Message:  "tool_use_failed",
			Body:     `{"error":{"code":"tool_use_failed"}}`,
		}},
		{chunks: []oai.ChatCompletionChunk{oai.TextChunk("m", "recovered")}},
	}}
	driver, _ := NewDriver(config.ReasoningModeNative, newDeps(t, provider))

	var out capture
	if err := driver.Execute(context.Background(), runOf(config.AgentConfig{}), out.emit); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.content.String(), "recovered") {
		t.Fatalf("content = %q", out.content.String())
	}

	// The retry request carries the synthetic correction turn.
	retry := provider.requests[1]
	last := retry.Messages[len(retry.Messages)-1]
	if last.Role != oai.RoleUser || !strings.Contains(last.ContentText(), "rejected") {
		t.Fatalf("correction turn missing: %+v", last)
	}
}

func TestReActDriverActionLoop(t *testing.T) {
	provider := &scriptedProvider{chats: []chatScript{
		{text: `<THOUGHT title="Phase 1: fetch">echo it</THOUGHT>
<DRAFT>waiting for echo</DRAFT>
<ACTION>{"tool_name":"echo_message","arguments":{"message":"data123"}}</ACTION>`},
		{text: `<THOUGHT title="Phase 2: answer">got it</THOUGHT>
<FINAL_ANSWER>echo returned data123</FINAL_ANSWER>`},
	}}
	deps := newDeps(t, provider)
	driver, _ := NewDriver(config.ReasoningModeReAct, deps)

	var out capture
	run := runOf(config.AgentConfig{})
	run.SessionID = "s1"
	if err := driver.Execute(context.Background(), run, out.emit); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	text := out.content.String()
	if !strings.Contains(text, "<think>echo it</think>") {
		t.Fatalf("thought not emitted: %q", text)
	}
	if !strings.Contains(text, "<OBSERVATION>data123</OBSERVATION>") {
		t.Fatalf("observation echo missing: %q", text)
	}
	if !strings.Contains(text, "echo returned data123") {
		t.Fatalf("final answer missing: %q", text)
	}

	// The second turn saw the observation in the scratchpad.
	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if !strings.Contains(last.ContentText(), "<OBSERVATION>data123</OBSERVATION>") {
		t.Fatalf("observation turn missing: %+v", last)
	}

	// Task state was cleared after the final answer.
	state, _ := deps.Session.LoadTask(context.Background(), "s1")
	if state.Draft != "" {
		t.Fatalf("task not cleared: %+v", state)
	}
}

func TestReActDriverResumesDraft(t *testing.T) {
	provider := &scriptedProvider{chats: []chatScript{
		{text: `<FINAL_ANSWER>done</FINAL_ANSWER>`},
	}}
	deps := newDeps(t, provider)
	deps.Session.SaveTask(context.Background(), "s1", "half-written report", 3)
	driver, _ := NewDriver(config.ReasoningModeReAct, deps)

	run := runOf(config.AgentConfig{})
	run.SessionID = "s1"
	var out capture
	if err := driver.Execute(context.Background(), run, out.emit); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	first := provider.requests[0]
	var resumed bool
	for _, msg := range first.Messages {
		if strings.Contains(msg.ContentText(), "phase 3") &&
			strings.Contains(msg.ContentText(), "half-written report") {
			resumed = true
		}
	}
	if !resumed {
		t.Fatalf("resume turn missing: %+v", first.Messages)
	}
}

func TestReActDriverSalvagesRejectedGeneration(t *testing.T) {
	provider := &scriptedProvider{chats: []chatScript{
		{err: &providers.BadRequestError{
			Provider: "fake",
			Message:  "invalid request",
			Body:     `{"error":{"failed_generation":"<FINAL_ANSWER>salvaged answer</FINAL_ANSWER>"}}`,
		}},
	}}
	driver, _ := NewDriver(config.ReasoningModeReAct, newDeps(t, provider))

	var out capture
	if err := driver.Execute(context.Background(), runOf(config.AgentConfig{}), out.emit); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.content.String(), "salvaged answer") {
		t.Fatalf("content = %q", out.content.String())
	}
}

func TestReActDriverGivesUpOnEmptyOutput(t *testing.T) {
	empty := chatScript{text: "  \n  "}
	provider := &scriptedProvider{chats: []chatScript{empty, empty, empty}}
	driver, _ := NewDriver(config.ReasoningModeReAct, newDeps(t, provider))

	var out capture
	err := driver.Execute(context.Background(), runOf(config.AgentConfig{}), out.emit)
	var emptyErr *EmptyOutputError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("got %v, want EmptyOutputError", err)
	}
}

func TestReActDriverTreatsProseAsThought(t *testing.T) {
	provider := &scriptedProvider{chats: []chatScript{
		{text: "Let me look into this first."},
		{text: `<FINAL_ANSWER>done looking</FINAL_ANSWER>`},
	}}
	driver, _ := NewDriver(config.ReasoningModeReAct, newDeps(t, provider))

	var out capture
	if err := driver.Execute(context.Background(), runOf(config.AgentConfig{}), out.emit); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	text := out.content.String()
	if !strings.Contains(text, "<think>Let me look into this first.</think>") {
		t.Fatalf("prose not treated as thought: %q", text)
	}
	if !strings.Contains(text, "done looking") {
		t.Fatalf("final answer missing: %q", text)
	}
}

func TestWaitingScheduleSeparatorAfterBatch(t *testing.T) {
	var out capture
	stop := waitingSchedule("assistant", []config.WaitingMessage{
		{After: 0, Text: "Still working."},
		{After: 0, Text: "Almost there."},
	}, out.emit)
	// Zero delays fire immediately; wait for the schedule to drain.
	time.Sleep(50 * time.Millisecond)
	stop()

	// One separator after the batch, not one glued to every message.
	if got := out.content.String(); got != "Still working.\nAlmost there.\n\n" {
		t.Fatalf("emitted = %q", got)
	}
}

func TestWaitingScheduleQuietWhenToolIsFast(t *testing.T) {
	var out capture
	stop := waitingSchedule("assistant", []config.WaitingMessage{
		{After: time.Hour, Text: "Still working."},
	}, out.emit)
	stop()
	if out.content.String() != "" {
		t.Fatalf("emitted = %q", out.content.String())
	}
}

func TestReActDriverSecondFormatRejectIsTerminal(t *testing.T) {
	reject := chatScript{err: &providers.BadRequestError{
		Provider: "fake", Message: "invalid request", Body: `{"error":"no generation here"}`,
	}}
	provider := &scriptedProvider{chats: []chatScript{reject, reject}}
	driver, _ := NewDriver(config.ReasoningModeReAct, newDeps(t, provider))

	var out capture
	err := driver.Execute(context.Background(), runOf(config.AgentConfig{}), out.emit)
	var badReq *providers.BadRequestError
	if !errors.As(err, &badReq) {
		t.Fatalf("got %v, want terminal BadRequestError", err)
	}
}
