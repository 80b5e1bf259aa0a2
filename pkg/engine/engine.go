package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"lumen-hq/relay/pkg/keypool"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
	"lumen-hq/relay/pkg/rotation"
	"lumen-hq/relay/pkg/router"
	"lumen-hq/relay/pkg/telemetry/metrics"
)

// Options configures an Engine. Providers, Pool, and Models are required.
type Options struct {
	// Providers maps provider names to their adapters.
	Providers map[string]providers.Provider

	// Pool manages the credentials the engine checks out per attempt.
	Pool *keypool.Manager

	// Models rotates through a profile's interchangeable model variants.
	Models *rotation.ModelRotator

	// StripParams maps provider names to the request fields that provider
	// rejects; they are removed from every attempt's payload.
	StripParams map[string][]string

	// Media rewrites inline base64 images into uploaded URLs before
	// dispatch. Nil passes inline payloads through.
	Media *providers.MediaExternalizer

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// RequestOptions carries per-request execution overrides.
type RequestOptions struct {
	// UserKey, when set, is the caller's own upstream credential. The pool
	// is bypassed entirely: one attempt per profile, no lifecycle actions.
	UserKey string

	// DisableTools removes every tool-related field from the payload.
	// Agents with tools switched off set this.
	DisableTools bool

	// ForceTextResponse pins response_format to plain text. The
	// scratchpad driver sets this: its protocol lives in the text channel.
	ForceTextResponse bool
}

// Engine drives the fallback chain.
type Engine struct {
	providers   map[string]providers.Provider
	pool        *keypool.Manager
	models      *rotation.ModelRotator
	stripParams map[string][]string
	media       *providers.MediaExternalizer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New builds an Engine from its collaborators.
func New(opts Options) *Engine {
	if opts.Models == nil {
		opts.Models = rotation.NewModelRotator()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		providers:   opts.Providers,
		pool:        opts.Pool,
		models:      opts.Models,
		stripParams: opts.StripParams,
		media:       opts.Media,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

// prepare runs the request-level shaping shared by every attempt: the
// conversation is normalized once and inline images are externalized.
func (e *Engine) prepare(ctx context.Context, body *oai.ChatCompletionRequest) {
	body.Messages = providers.NormalizeMessages(body.Messages)
	if e.media != nil {
		e.media.Externalize(ctx, body.Messages)
	}
}

// shape builds one attempt's payload from the shared body: profile
// sampling defaults are folded in (client values win), then the policy is
// enforced for the target provider.
func (e *Engine) shape(body oai.ChatCompletionRequest, profile router.Profile, opts RequestOptions) oai.ChatCompletionRequest {
	if body.Temperature == nil {
		body.Temperature = profile.Temperature
	}
	if body.TopP == nil {
		body.TopP = profile.TopP
	}
	if body.MaxTokens == nil {
		body.MaxTokens = profile.MaxTokens
	}
	providers.Apply(&body, providers.Policy{
		ToolsEnabled:      !opts.DisableTools,
		ForceTextResponse: opts.ForceTextResponse,
		StripParams:       e.stripParams[profile.Provider],
	})
	return body
}

// Chat runs a unary completion over the chain. The first profile that
// answers wins; validation rejections (HTTP 400) abort the chain because the
// request itself is at fault and every profile would refuse it the same way.
func (e *Engine) Chat(ctx context.Context, route router.Route, body oai.ChatCompletionRequest, opts RequestOptions) (*oai.ChatCompletionResponse, error) {
	e.prepare(ctx, &body)
	return overChain(ctx, e, route, opts, func(profile router.Profile, attempts *int) (*oai.ChatCompletionResponse, error) {
		return callProfile(ctx, e, route.Alias, profile, opts, attempts,
			func(attempt providers.Request) (*oai.ChatCompletionResponse, error) {
				attempt.Body = e.shape(body, profile, opts)
				attempt.BaseURL = profile.APIBase
				return e.providers[profile.Provider].Chat(ctx, attempt)
			})
	})
}

// ChatStream runs a streaming completion over the chain. Each attempt is
// held back until its first chunk arrives; failures before that point close
// the upstream and fall through silently. The returned stream replays the
// peeked chunk first, and failures after it are the caller's to see.
func (e *Engine) ChatStream(ctx context.Context, route router.Route, body oai.ChatCompletionRequest, opts RequestOptions) (providers.Stream, error) {
	e.prepare(ctx, &body)
	return overChain(ctx, e, route, opts, func(profile router.Profile, attempts *int) (providers.Stream, error) {
		return callProfile(ctx, e, route.Alias, profile, opts, attempts,
			func(attempt providers.Request) (providers.Stream, error) {
				attempt.Body = e.shape(body, profile, opts)
				attempt.BaseURL = profile.APIBase
				return e.openStream(ctx, profile, attempt, opts)
			})
	})
}

// openStream dials one streaming attempt and peeks its first chunk. The
// credential stays checked out for the life of the stream; peekedStream
// hands it back when the stream finishes.
//
// openStream owns key disposal on failure paths. callProfile sees that the
// key was consumed through the keyConsumed sentinel on the returned stream,
// so only one of them ever touches the pool.
func (e *Engine) openStream(ctx context.Context, profile router.Profile, attempt providers.Request, opts RequestOptions) (providers.Stream, error) {
	upstream, err := e.providers[profile.Provider].ChatStream(ctx, attempt)
	if err != nil {
		return nil, err
	}

	first, err := upstream.Recv()
	if err != nil {
		upstream.Close()
		if err == io.EOF {
			// An empty stream carries no answer. Treat it like any other
			// pre-first-byte failure so the chain can still recover.
			err = &providers.StreamError{
				Provider: profile.Provider,
				Cause:    errors.New("stream ended before first chunk"),
			}
		}
		return nil, err
	}

	return &peekedStream{
		inner: upstream,
		first: &first,
		finish: func(cause error) {
			e.dispose(profile.Provider, attempt.Key, opts, cause)
		},
	}, nil
}

// callProfile is the key-scoped retry loop shared by every surface. It
// acquires credentials, rotates model variants, and classifies outcomes
// until the call succeeds, the request is found to be at fault, or the
// profile runs out of keys. The attempt bound is the live key count plus
// one, covering a key loaded mid-loop.
func callProfile[T any](ctx context.Context, e *Engine, alias string, profile router.Profile, opts RequestOptions, attempts *int, call func(providers.Request) (T, error)) (T, error) {
	var zero T
	maxAttempts := 1
	if opts.UserKey == "" {
		maxAttempts = e.pool.TotalKeys(profile.Provider) + 1
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		key := opts.UserKey
		if key == "" {
			var err error
			key, err = e.pool.Acquire(ctx, profile.Provider)
			if err != nil {
				if lastErr == nil {
					lastErr = err
				}
				return zero, lastErr
			}
		}

		model := e.models.NextModel(ctx, profile.Provider, alias, profile.Models)
		e.metrics.RecordProviderRequest(profile.Provider, model)
		*attempts++

		out, err := call(providers.Request{Model: model, Key: key})
		if err == nil {
			// Streaming attempts keep their key until the stream finishes;
			// everything else hands it back now.
			if !keyConsumed(out) {
				e.dispose(profile.Provider, key, opts, nil)
			}
			return out, nil
		}

		e.dispose(profile.Provider, key, opts, err)
		e.metrics.RecordProviderError(profile.Provider, providers.ErrorKind(err))
		lastErr = err

		var rateErr *providers.RateLimitError
		if errors.As(err, &rateErr) {
			// Sibling keys of a rate-limited deployment are about to hit
			// the same wall. Move to the next profile immediately.
			return zero, err
		}
		var badReq *providers.BadRequestError
		if errors.As(err, &badReq) {
			return zero, err
		}
		if opts.UserKey != "" {
			return zero, err
		}
	}
	return zero, lastErr
}

// dispose applies the key lifecycle action for an attempt outcome.
// User-supplied keys are never pooled, so there is nothing to do for them.
func (e *Engine) dispose(provider, key string, opts RequestOptions, err error) {
	if opts.UserKey != "" {
		return
	}
	switch providers.KeyDisposition(err) {
	case providers.DispositionRetire:
		e.pool.Retire(provider, key, providers.ErrorKind(err))
	case providers.DispositionQuarantine:
		e.pool.Quarantine(provider, key, providers.ErrorKind(err))
	default:
		e.pool.Release(provider, key)
	}
}

// fallback records a profile failure. The fallback metric only counts moves
// that have somewhere to go.
func (e *Engine) fallback(alias string, profile router.Profile, index, chainLen int, err error) {
	if index < chainLen-1 {
		e.metrics.RecordFallback(alias)
	}
	e.logger.Warn("profile failed",
		"alias", alias,
		"profile", profile.Name,
		"provider", profile.Provider,
		"kind", providers.ErrorKind(err),
		"remaining", chainLen-index-1,
		"error", err)
}

// keyConsumed reports whether the call result took ownership of the
// credential. Only peeked streams do.
func keyConsumed(out any) bool {
	_, ok := out.(*peekedStream)
	return ok
}
