package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
)

// Adapter serves the Google Generative Language API.
type Adapter struct {
	name       string
	client     *providers.Client
	signatures *signatures
	cache      *contextCache
	logger     *slog.Logger
}

// New builds an Adapter. store holds signature and context-cache state;
// pass a MemoryStore when Redis is not configured. httpClient is the
// process-wide pooled client; nil builds a private one.
func New(name string, cfg config.ProviderConfig, store StateStore, httpClient *http.Client, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", name)
	if store == nil {
		store = NewMemoryStore()
	}
	return &Adapter{
		name: name,
		client: providers.NewClient(name, cfg.BaseURL, providers.ClientOptions{
			UnaryTimeout:  cfg.Timeout,
			StreamTimeout: cfg.StreamTimeout,
			Headers:       cfg.ExtraHeaders,
			HTTP:          httpClient,
		}),
		signatures: &signatures{store: store, logger: logger},
		cache:      &contextCache{store: store, logger: logger},
		logger:     logger,
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) authHeaders(key string) map[string]string {
	return map[string]string{"x-goog-api-key": key}
}

// Chat performs a unary completion.
func (a *Adapter) Chat(ctx context.Context, req providers.Request) (*oai.ChatCompletionResponse, error) {
	body := a.buildRequest(ctx, req.Body)
	a.cache.apply(ctx, a, req.Key, req.Model, &body)

	var wire generateResponse
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", req.Model)
	if err := a.client.WithBaseURL(req.BaseURL).PostJSON(ctx, path, a.authHeaders(req.Key), body, &wire); err != nil {
		return nil, err
	}
	return a.convertUnary(ctx, req.Model, wire)
}

// ChatStream opens a streaming completion over SSE.
func (a *Adapter) ChatStream(ctx context.Context, req providers.Request) (providers.Stream, error) {
	body := a.buildRequest(ctx, req.Body)
	a.cache.apply(ctx, a, req.Key, req.Model, &body)

	path := fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", req.Model)
	resp, err := a.client.WithBaseURL(req.BaseURL).Post(ctx, path, a.authHeaders(req.Key), body)
	if err != nil {
		return nil, err
	}
	return newStream(a, req.Model, resp), nil
}

func (a *Adapter) convertUnary(ctx context.Context, model string, wire generateResponse) (*oai.ChatCompletionResponse, error) {
	if len(wire.Candidates) == 0 {
		return nil, &providers.ParseError{
			Provider: a.name,
			Cause:    fmt.Errorf("response carried no candidates"),
		}
	}
	cand := wire.Candidates[0]

	msg := oai.Message{Role: oai.RoleAssistant}
	var text string
	var signature string
	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			call := convertFunctionCall(p.FunctionCall)
			a.signatures.save(ctx, call.ID, p.ThoughtSignature)
			msg.ToolCalls = append(msg.ToolCalls, call)
		case p.Thought:
			// Reasoning text is dropped on the unary path; the OpenAI
			// response shape has no field for it.
		default:
			text += p.Text
			if p.ThoughtSignature != "" {
				signature = p.ThoughtSignature
			}
		}
	}
	if len(msg.ToolCalls) > 0 && signature != "" {
		a.signatures.save(ctx, msg.ToolCalls[0].ID, signature)
		text = embedSignature(text, signature)
	}
	msg.Content = text

	resp := &oai.ChatCompletionResponse{
		ID:      oai.NewChunkID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []oai.ChatCompletionChoice{{
			Message:      msg,
			FinishReason: mapFinishReason(cand.FinishReason, len(msg.ToolCalls) > 0),
		}},
	}
	if wire.UsageMetadata != nil {
		resp.Usage = oai.Usage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wire.UsageMetadata.TotalTokenCount,
		}
	}
	return resp, nil
}

// createCachedContent uploads a conversation prefix as a cachedContents
// resource and returns its name.
func (a *Adapter) createCachedContent(ctx context.Context, key, model string, prefix []content, system *content) (string, error) {
	body := cachedContentRequest{
		Model:             "models/" + model,
		Contents:          prefix,
		SystemInstruction: system,
		TTL:               fmt.Sprintf("%ds", int(cacheTTL.Seconds())),
	}
	var resp cachedContentResponse
	if err := a.client.PostJSON(ctx, "/v1beta/cachedContents", a.authHeaders(key), body, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

var _ providers.Provider = (*Adapter)(nil)
