// Package providerfactory builds the provider adapter set from
// configuration.
package providerfactory

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/providers"
	"lumen-hq/relay/pkg/providers/gemini"
	"lumen-hq/relay/pkg/providers/openaicompat"
)

// Options are the shared collaborators handed to every adapter.
type Options struct {
	// Redis backs the Gemini signature and context-cache stores. Nil
	// falls back to process-local state.
	Redis *redis.Client

	// Mock replaces every adapter with a scripted stream, for load
	// testing the gateway itself.
	Mock config.MockConfig

	// HTTP is the process-wide pooled client shared by every adapter.
	// Nil builds one.
	HTTP *http.Client

	Logger *slog.Logger
}

// Build constructs one adapter per configured provider, keyed by name.
//
// Supported types:
//   - "openai": any OpenAI-compatible API (OpenAI, Groq, Mistral, vLLM, ...)
//   - "gemini": the Google Generative Language API
func Build(cfgs map[string]config.ProviderConfig, opts Options) (map[string]providers.Provider, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HTTP == nil {
		opts.HTTP = providers.NewHTTPClient()
	}

	out := make(map[string]providers.Provider, len(cfgs))
	for name, cfg := range cfgs {
		if opts.Mock.Enabled {
			out[name] = providers.NewMockProvider(name, opts.Mock.Script)
			continue
		}

		switch cfg.Type {
		case config.ProviderTypeOpenAI, "":
			out[name] = openaicompat.New(name, cfg, opts.HTTP, opts.Logger)
		case config.ProviderTypeGemini:
			var store gemini.StateStore
			if opts.Redis != nil {
				store = gemini.NewRedisStore(opts.Redis)
			}
			out[name] = gemini.New(name, cfg, store, opts.HTTP, opts.Logger)
		default:
			return nil, fmt.Errorf("provider %q: unsupported type %q (supported: %s, %s)",
				name, cfg.Type, config.ProviderTypeOpenAI, config.ProviderTypeGemini)
		}

		opts.Logger.Debug("provider created",
			"name", name, "type", cfg.Type, "base_url", cfg.BaseURL)
	}
	return out, nil
}
