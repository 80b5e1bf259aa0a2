package openaicompat

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
)

// wireDelta mirrors the delta shape on the wire. Vendors disagree on the
// reasoning field name: OpenAI-adjacent APIs use "reasoning_content", some
// routers use "reasoning".
type wireDelta struct {
	Role             string              `json:"role"`
	Content          string              `json:"content"`
	ReasoningContent string              `json:"reasoning_content"`
	Reasoning        string              `json:"reasoning"`
	ToolCalls        []oai.ToolCallDelta `json:"tool_calls"`
}

type wireChoice struct {
	Index        int       `json:"index"`
	Delta        wireDelta `json:"delta"`
	FinishReason string    `json:"finish_reason"`
}

type wireChunk struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *oai.Usage   `json:"usage"`
}

// stream decodes SSE events into chunks. Malformed events are logged and
// skipped rather than killing an otherwise healthy stream.
type stream struct {
	provider string
	resp     *http.Response
	scanner  *providers.SSEScanner
	logger   *slog.Logger

	closeOnce sync.Once
}

func newStream(provider string, resp *http.Response, logger *slog.Logger) *stream {
	return &stream{
		provider: provider,
		resp:     resp,
		scanner:  providers.NewSSEScanner(resp.Body),
		logger:   logger,
	}
}

func (s *stream) Recv() (oai.ChatCompletionChunk, error) {
	for {
		data, err := s.scanner.Next()
		if err != nil {
			return oai.ChatCompletionChunk{}, err
		}

		var wire wireChunk
		if err := json.Unmarshal([]byte(data), &wire); err != nil {
			s.logger.Warn("skipping malformed stream event", "error", err)
			continue
		}
		return s.convert(wire), nil
	}
}

func (s *stream) convert(wire wireChunk) oai.ChatCompletionChunk {
	chunk := oai.ChatCompletionChunk{
		ID:      wire.ID,
		Object:  oai.ObjectChatCompletionChunk,
		Created: wire.Created,
		Model:   wire.Model,
		Usage:   wire.Usage,
	}
	for _, choice := range wire.Choices {
		reasoning := choice.Delta.ReasoningContent
		if reasoning == "" {
			reasoning = choice.Delta.Reasoning
		}
		chunk.Choices = append(chunk.Choices, oai.ChunkChoice{
			Index: choice.Index,
			Delta: oai.Delta{
				Role:             choice.Delta.Role,
				Content:          choice.Delta.Content,
				ReasoningContent: reasoning,
				ToolCalls:        choice.Delta.ToolCalls,
			},
			FinishReason: choice.FinishReason,
		})
	}
	return chunk
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.resp.Body.Close()
	})
	return nil
}
