package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
)

// stream decodes a streamGenerateContent SSE body into chunks. Gemini
// emits complete functionCall parts, so each becomes a single tool-call
// delta carrying the full argument payload.
type stream struct {
	adapter *Adapter
	model   string
	resp    *http.Response
	scanner *providers.SSEScanner

	// toolIndex numbers tool-call deltas across the whole stream.
	toolIndex int
	// sawToolCall steers the finish reason mapping.
	sawToolCall bool

	closeOnce sync.Once
}

func newStream(adapter *Adapter, model string, resp *http.Response) *stream {
	return &stream{
		adapter: adapter,
		model:   model,
		resp:    resp,
		scanner: providers.NewSSEScanner(resp.Body),
	}
}

func (s *stream) Recv() (oai.ChatCompletionChunk, error) {
	for {
		data, err := s.scanner.Next()
		if err != nil {
			return oai.ChatCompletionChunk{}, err
		}

		var wire generateResponse
		if err := json.Unmarshal([]byte(data), &wire); err != nil {
			s.adapter.logger.Warn("skipping malformed stream event", "error", err)
			continue
		}
		chunk, ok := s.convert(wire)
		if !ok {
			continue
		}
		return chunk, nil
	}
}

func (s *stream) convert(wire generateResponse) (oai.ChatCompletionChunk, bool) {
	if len(wire.Candidates) == 0 {
		return oai.ChatCompletionChunk{}, false
	}
	cand := wire.Candidates[0]

	delta := oai.Delta{}
	var signature string
	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			call := convertFunctionCall(p.FunctionCall)
			s.adapter.signatures.save(context.Background(), call.ID, p.ThoughtSignature)
			delta.ToolCalls = append(delta.ToolCalls, oai.ToolCallDelta{
				Index: s.toolIndex,
				ID:    call.ID,
				Type:  oai.ToolTypeFunction,
				Function: &oai.FunctionCallDelta{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
			s.toolIndex++
			s.sawToolCall = true
		case p.Thought:
			delta.ReasoningContent += p.Text
		default:
			delta.Content += p.Text
			if p.ThoughtSignature != "" {
				signature = p.ThoughtSignature
			}
		}
	}
	if signature != "" && len(delta.ToolCalls) > 0 {
		delta.Content = embedSignature(delta.Content, signature)
	}

	finish := mapFinishReason(cand.FinishReason, s.sawToolCall)
	if delta.Content == "" && delta.ReasoningContent == "" && len(delta.ToolCalls) == 0 && finish == "" {
		return oai.ChatCompletionChunk{}, false
	}

	chunk := oai.ChatCompletionChunk{
		ID:      oai.NewChunkID(),
		Object:  oai.ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   s.model,
		Choices: []oai.ChunkChoice{{Delta: delta, FinishReason: finish}},
	}
	if wire.UsageMetadata != nil {
		chunk.Usage = &oai.Usage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wire.UsageMetadata.TotalTokenCount,
		}
	}
	return chunk, true
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.resp.Body.Close()
	})
	return nil
}

// convertFunctionCall turns a complete Gemini function call into an OpenAI
// tool call with a fresh id.
func convertFunctionCall(fc *functionCall) oai.ToolCall {
	args := "{}"
	if len(fc.Args) > 0 {
		if encoded, err := json.Marshal(fc.Args); err == nil {
			args = string(encoded)
		}
	}
	return oai.ToolCall{
		ID:       oai.NewToolCallID(),
		Type:     oai.ToolTypeFunction,
		Function: oai.FunctionCall{Name: fc.Name, Arguments: args},
	}
}
