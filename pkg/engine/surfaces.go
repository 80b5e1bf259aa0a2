package engine

import (
	"bytes"
	"context"
	"errors"
	"io"

	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
	"lumen-hq/relay/pkg/router"
)

// Embeddings runs an embedding request over the chain. Profiles whose
// provider has no embedding surface are skipped.
func (e *Engine) Embeddings(ctx context.Context, route router.Route, req oai.EmbeddingRequest, opts RequestOptions) (*oai.EmbeddingResponse, error) {
	return overChain(ctx, e, route, opts, func(profile router.Profile, attempts *int) (*oai.EmbeddingResponse, error) {
		embedder, ok := e.providers[profile.Provider].(providers.Embedder)
		if !ok {
			return nil, &UnsupportedOperationError{Provider: profile.Provider, Operation: "embeddings"}
		}
		return callProfile(ctx, e, route.Alias, profile, opts, attempts,
			func(attempt providers.Request) (*oai.EmbeddingResponse, error) {
				req.Model = attempt.Model
				return embedder.Embeddings(ctx, attempt.Key, req)
			})
	})
}

// Speech synthesizes audio over the chain. Returns the payload and its
// content type.
func (e *Engine) Speech(ctx context.Context, route router.Route, req oai.SpeechRequest, opts RequestOptions) ([]byte, string, error) {
	type speechResult struct {
		audio       []byte
		contentType string
	}
	out, err := overChain(ctx, e, route, opts, func(profile router.Profile, attempts *int) (*speechResult, error) {
		synth, ok := e.providers[profile.Provider].(providers.SpeechSynthesizer)
		if !ok {
			return nil, &UnsupportedOperationError{Provider: profile.Provider, Operation: "speech"}
		}
		return callProfile(ctx, e, route.Alias, profile, opts, attempts,
			func(attempt providers.Request) (*speechResult, error) {
				req.Model = attempt.Model
				audio, contentType, err := synth.Speech(ctx, attempt.Key, req)
				if err != nil {
					return nil, err
				}
				return &speechResult{audio: audio, contentType: contentType}, nil
			})
	})
	if err != nil {
		return nil, "", err
	}
	return out.audio, out.contentType, nil
}

// Transcribe runs a transcription over the chain. The audio is buffered once
// so retries can replay it.
func (e *Engine) Transcribe(ctx context.Context, route router.Route, audio io.Reader, filename string, opts RequestOptions) (*oai.TranscriptionResponse, error) {
	payload, err := io.ReadAll(audio)
	if err != nil {
		return nil, err
	}
	return overChain(ctx, e, route, opts, func(profile router.Profile, attempts *int) (*oai.TranscriptionResponse, error) {
		scriber, ok := e.providers[profile.Provider].(providers.Transcriber)
		if !ok {
			return nil, &UnsupportedOperationError{Provider: profile.Provider, Operation: "transcription"}
		}
		return callProfile(ctx, e, route.Alias, profile, opts, attempts,
			func(attempt providers.Request) (*oai.TranscriptionResponse, error) {
				return scriber.Transcribe(ctx, attempt.Key, bytes.NewReader(payload), filename, attempt.Model)
			})
	})
}

// overChain walks the chain for the non-chat surfaces with the same
// fallback semantics as Chat.
func overChain[T any](ctx context.Context, e *Engine, route router.Route, opts RequestOptions, run func(profile router.Profile, attempts *int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := 0

	for i, profile := range route.Profiles {
		if _, ok := e.providers[profile.Provider]; !ok {
			lastErr = &UnknownProviderError{Provider: profile.Provider}
			e.fallback(route.Alias, profile, i, len(route.Profiles), lastErr)
			continue
		}
		out, err := run(profile, &attempts)
		if err == nil {
			return out, nil
		}
		var badReq *providers.BadRequestError
		if errors.As(err, &badReq) {
			return zero, err
		}
		lastErr = err
		e.fallback(route.Alias, profile, i, len(route.Profiles), err)
	}
	return zero, &ChainExhaustedError{Alias: route.Alias, Attempts: attempts, LastErr: lastErr}
}
