package gemini

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"
)

// Context caching thresholds. The prefix must be large enough that the
// server-side cache pays for its own round trip.
const (
	cacheCharThreshold = 10000
	cacheTTL           = 30 * time.Minute
	cacheKeyPrefix     = "google_context_cache:"
)

// contextCache moves a large stable conversation prefix into a Gemini
// cachedContents resource and rewrites the request to reference it. The
// hash->resource mapping is shared through the state store.
type contextCache struct {
	store  StateStore
	logger *slog.Logger
}

// apply splits req into cached prefix and live tail when the prefix is
// large enough. On any failure the request is left untouched; caching is an
// optimization, never a dependency.
func (c *contextCache) apply(ctx context.Context, a *Adapter, key, model string, req *generateRequest) {
	if len(req.Contents) < 2 || len(req.Tools) > 0 {
		// Tool declarations cannot ride inside cachedContents together
		// with per-call overrides; skip caching for tool requests.
		return
	}
	prefix := req.Contents[:len(req.Contents)-1]
	if contentSize(prefix) < cacheCharThreshold {
		return
	}

	hash := hashContents(prefix, req.SystemInstruction, model)
	name, ok, err := c.store.Get(ctx, cacheKeyPrefix+hash)
	if err != nil {
		c.logger.Warn("context cache lookup failed", "error", err)
		return
	}
	if !ok {
		name, err = a.createCachedContent(ctx, key, model, prefix, req.SystemInstruction)
		if err != nil {
			c.logger.Warn("context cache creation failed", "error", err)
			return
		}
		if err := c.store.Set(ctx, cacheKeyPrefix+hash, name, cacheTTL); err != nil {
			c.logger.Warn("context cache registration failed", "error", err)
		}
		c.logger.Info("context cache created", "name", name, "chars", contentSize(prefix))
	}

	req.CachedContent = name
	req.Contents = req.Contents[len(req.Contents)-1:]
	req.SystemInstruction = nil
}

func contentSize(contents []content) int {
	total := 0
	for _, c := range contents {
		for _, p := range c.Parts {
			total += len(p.Text)
			total += len(p.ThoughtSignature)
			if p.InlineData != nil {
				total += len(p.InlineData.Data)
			}
		}
	}
	return total
}

func hashContents(contents []content, system *content, model string) string {
	h := md5.New()
	h.Write([]byte(model))
	enc := json.NewEncoder(h)
	if system != nil {
		_ = enc.Encode(system)
	}
	for _, c := range contents {
		_ = enc.Encode(c)
	}
	return hex.EncodeToString(h.Sum(nil))
}
