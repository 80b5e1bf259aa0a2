package openaicompat

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
)

// Adapter serves the OpenAI-compatible wire format. It implements
// providers.Provider plus the embedding and audio capabilities.
type Adapter struct {
	name   string
	client *providers.Client
	logger *slog.Logger
}

// New builds an Adapter for one configured provider endpoint. httpClient
// is the process-wide pooled client; nil builds a private one.
func New(name string, cfg config.ProviderConfig, httpClient *http.Client, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		name: name,
		client: providers.NewClient(name, cfg.BaseURL, providers.ClientOptions{
			UnaryTimeout:  cfg.Timeout,
			StreamTimeout: cfg.StreamTimeout,
			Headers:       cfg.ExtraHeaders,
			HTTP:          httpClient,
		}),
		logger: logger.With("provider", name),
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) authHeaders(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

// Chat performs a unary completion.
func (a *Adapter) Chat(ctx context.Context, req providers.Request) (*oai.ChatCompletionResponse, error) {
	body := req.Body
	body.Model = req.Model
	body.Stream = false

	var resp oai.ChatCompletionResponse
	client := a.client.WithBaseURL(req.BaseURL)
	if err := client.PostJSON(ctx, "/chat/completions", a.authHeaders(req.Key), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChatStream opens a streaming completion. The returned stream owns the
// response body.
func (a *Adapter) ChatStream(ctx context.Context, req providers.Request) (providers.Stream, error) {
	body := req.Body
	body.Model = req.Model
	body.Stream = true

	headers := a.authHeaders(req.Key)
	headers["Accept"] = "text/event-stream"
	resp, err := a.client.WithBaseURL(req.BaseURL).Post(ctx, "/chat/completions", headers, body)
	if err != nil {
		return nil, err
	}
	return newStream(a.name, resp, a.logger), nil
}

// Embeddings implements providers.Embedder.
func (a *Adapter) Embeddings(ctx context.Context, key string, req oai.EmbeddingRequest) (*oai.EmbeddingResponse, error) {
	var resp oai.EmbeddingResponse
	if err := a.client.PostJSON(ctx, "/embeddings", a.authHeaders(key), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Speech implements providers.SpeechSynthesizer. The second return value is
// the response content type.
func (a *Adapter) Speech(ctx context.Context, key string, req oai.SpeechRequest) ([]byte, string, error) {
	resp, err := a.client.Post(ctx, "/audio/speech", a.authHeaders(key), req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &providers.StreamError{Provider: a.name, Cause: err}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return audio, contentType, nil
}

// Transcribe implements providers.Transcriber.
func (a *Adapter) Transcribe(ctx context.Context, key string, audio io.Reader, filename, model string) (*oai.TranscriptionResponse, error) {
	var resp oai.TranscriptionResponse
	err := a.client.PostMultipart(ctx, "/audio/transcriptions", a.authHeaders(key),
		map[string]string{"model": model}, "file", filename, audio, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

var _ providers.Provider = (*Adapter)(nil)
var _ providers.Embedder = (*Adapter)(nil)
var _ providers.SpeechSynthesizer = (*Adapter)(nil)
var _ providers.Transcriber = (*Adapter)(nil)
