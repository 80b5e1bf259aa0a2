package providers

import (
	"context"
	"io"

	"lumen-hq/relay/pkg/oai"
)

// Request is one upstream attempt: the payload, the concrete model, and the
// credential for exactly this call.
type Request struct {
	// Model is the upstream model name, already resolved from the
	// profile's variant rotation.
	Model string

	// Key authenticates this single attempt.
	Key string

	// BaseURL, when set, overrides the provider's configured endpoint for
	// this attempt. Profiles with an api_base set this.
	BaseURL string

	// Body is the policy-applied request. Adapters overwrite Body.Model
	// with Model before dispatch.
	Body oai.ChatCompletionRequest
}

// Stream yields completion chunks until io.EOF. Recv returning any other
// error means the stream broke mid-flight. Close releases the underlying
// connection and is safe to call more than once.
type Stream interface {
	Recv() (oai.ChatCompletionChunk, error)
	Close() error
}

// Provider is the adapter contract. Implementations translate between the
// OpenAI-compatible shapes and their native wire format; every stream they
// return speaks oai.ChatCompletionChunk.
type Provider interface {
	// Name is the configured provider name, used for pools, metrics, and
	// logs.
	Name() string

	// Chat performs a unary completion.
	Chat(ctx context.Context, req Request) (*oai.ChatCompletionResponse, error)

	// ChatStream opens a streaming completion. A non-nil Stream means the
	// HTTP response was accepted; failures after that surface from Recv.
	ChatStream(ctx context.Context, req Request) (Stream, error)
}

// Embedder is implemented by providers that serve /v1/embeddings.
type Embedder interface {
	Embeddings(ctx context.Context, key string, req oai.EmbeddingRequest) (*oai.EmbeddingResponse, error)
}

// SpeechSynthesizer is implemented by providers that serve /v1/audio/speech.
// The return value is the raw audio payload.
type SpeechSynthesizer interface {
	Speech(ctx context.Context, key string, req oai.SpeechRequest) ([]byte, string, error)
}

// Transcriber is implemented by providers that serve
// /v1/audio/transcriptions.
type Transcriber interface {
	Transcribe(ctx context.Context, key string, audio io.Reader, filename, model string) (*oai.TranscriptionResponse, error)
}
