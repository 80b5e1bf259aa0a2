package providers

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"lumen-hq/relay/pkg/oai"
)

// defaultMockScript is streamed when no script is configured.
var defaultMockScript = []string{"This ", "is ", "a ", "mock ", "response."}

// MockProvider satisfies every request with a scripted stream without
// touching the network. Wired in when mock mode is enabled, so load tests
// exercise the whole gateway path except the upstream call.
type MockProvider struct {
	name   string
	script []string
}

// NewMockProvider builds a mock provider. An empty script falls back to the
// built-in one.
func NewMockProvider(name string, script []string) *MockProvider {
	if len(script) == 0 {
		script = defaultMockScript
	}
	return &MockProvider{name: name, script: script}
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Chat(_ context.Context, req Request) (*oai.ChatCompletionResponse, error) {
	return &oai.ChatCompletionResponse{
		ID:      oai.NewChunkID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []oai.ChatCompletionChoice{{
			Message: oai.Message{
				Role:    oai.RoleAssistant,
				Content: strings.Join(m.script, ""),
			},
			FinishReason: oai.FinishReasonStop,
		}},
	}, nil
}

func (m *MockProvider) ChatStream(_ context.Context, req Request) (Stream, error) {
	return &mockStream{model: req.Model, script: m.script}, nil
}

type mockStream struct {
	model  string
	script []string

	mu   sync.Mutex
	pos  int
	done bool
}

func (s *mockStream) Recv() (oai.ChatCompletionChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos < len(s.script) {
		chunk := oai.TextChunk(s.model, s.script[s.pos])
		s.pos++
		return chunk, nil
	}
	if !s.done {
		s.done = true
		return oai.FinishChunk(s.model, oai.FinishReasonStop), nil
	}
	return oai.ChatCompletionChunk{}, io.EOF
}

func (s *mockStream) Close() error { return nil }
