package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"lumen-hq/relay/pkg/cache/storage"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/telemetry/metrics"
)

// DefaultTTL is how long entries stay valid when the configuration does not
// say otherwise.
const DefaultTTL = time.Hour

// Options configures a Cache.
type Options struct {
	// TTL is the entry lifetime. Zero means DefaultTTL.
	TTL time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Cache wraps a storage backend with fingerprinting and admission control.
type Cache struct {
	backend storage.Backend
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds a Cache over backend.
func New(backend storage.Backend, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		backend: backend,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Lookup returns the cached completion for the request, if a live and still
// admissible entry exists. Entries that fail admission on read are purged.
func (c *Cache) Lookup(ctx context.Context, alias string, req oai.ChatCompletionRequest) (*oai.ChatCompletionResponse, bool) {
	key := Fingerprint(alias, req)
	if key == "" {
		return nil, false
	}

	payload, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		c.metrics.RecordCacheEvent("miss")
		return nil, false
	}

	var resp oai.ChatCompletionResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		c.logger.Warn("dropping undecodable cache entry", "error", err)
		c.backend.Delete(ctx, key)
		c.metrics.RecordCacheEvent("miss")
		return nil, false
	}
	if !admissible(&resp) {
		c.backend.Delete(ctx, key)
		c.metrics.RecordCacheEvent("reject")
		return nil, false
	}

	c.metrics.RecordCacheEvent("hit")
	return &resp, true
}

// Store writes a completion if it passes admission. Inadmissible responses
// are counted and dropped silently; a failed write never fails the request.
func (c *Cache) Store(ctx context.Context, alias string, req oai.ChatCompletionRequest, resp *oai.ChatCompletionResponse) {
	if !admissible(resp) {
		c.metrics.RecordCacheEvent("reject")
		return
	}
	key := Fingerprint(alias, req)
	if key == "" {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.backend.Set(ctx, key, string(payload), c.ttl); err != nil {
		c.logger.Warn("cache write failed", "error", err)
		return
	}
	c.metrics.RecordCacheEvent("write")
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}
