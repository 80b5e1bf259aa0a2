package providers

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"lumen-hq/relay/pkg/oai"
)

// Uploader stores a binary blob and returns a URL the upstream provider can
// fetch instead of an inline base64 payload.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType string) (string, error)
}

// MediaExternalizer rewrites inline data-URL images in message content into
// uploaded URLs. Upload results are cached by content hash so a
// conversation replaying the same image across turns uploads it once.
type MediaExternalizer struct {
	uploader Uploader
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]string // content hash -> URL
}

// NewMediaExternalizer builds an externalizer over uploader.
func NewMediaExternalizer(uploader Uploader, logger *slog.Logger) *MediaExternalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaExternalizer{
		uploader: uploader,
		logger:   logger,
		cache:    make(map[string]string),
	}
}

// Externalize rewrites messages in place. A failed upload leaves the inline
// payload untouched; oversized requests are the provider's problem to
// reject, not a reason to drop user content.
func (m *MediaExternalizer) Externalize(ctx context.Context, messages []oai.Message) {
	if m.uploader == nil {
		return
	}
	for i := range messages {
		parts, ok := messages[i].Content.([]any)
		if !ok {
			continue
		}
		for j, item := range parts {
			part, ok := item.(map[string]any)
			if !ok || part["type"] != "image_url" {
				continue
			}
			imageURL, ok := part["image_url"].(map[string]any)
			if !ok {
				continue
			}
			rawURL, _ := imageURL["url"].(string)
			replaced, err := m.externalizeDataURL(ctx, rawURL)
			if err != nil {
				m.logger.Warn("image upload failed, keeping inline payload", "error", err)
				continue
			}
			if replaced != "" {
				imageURL["url"] = replaced
				part["image_url"] = imageURL
				parts[j] = part
			}
		}
		messages[i].Content = parts
	}
}

// externalizeDataURL uploads a "data:<mime>;base64,<payload>" URL and
// returns its replacement. Non-data URLs return "".
func (m *MediaExternalizer) externalizeDataURL(ctx context.Context, rawURL string) (string, error) {
	rest, ok := strings.CutPrefix(rawURL, "data:")
	if !ok {
		return "", nil
	}
	mimeType, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decoding inline image: %w", err)
	}

	sum := md5.Sum(data)
	hash := hex.EncodeToString(sum[:])

	m.mu.Lock()
	cached, hit := m.cache[hash]
	m.mu.Unlock()
	if hit {
		return cached, nil
	}

	url, err := m.uploader.Upload(ctx, data, mimeType)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.cache[hash] = url
	m.mu.Unlock()
	m.logger.Debug("inline image externalized", "bytes", len(data), "mime", mimeType)
	return url, nil
}
