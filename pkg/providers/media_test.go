package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"lumen-hq/relay/pkg/oai"
)

type countingUploader struct {
	uploads int
	fail    bool
}

func (u *countingUploader) Upload(_ context.Context, data []byte, mimeType string) (string, error) {
	if u.fail {
		return "", fmt.Errorf("storage offline")
	}
	u.uploads++
	return fmt.Sprintf("https://media.example/%d", u.uploads), nil
}

func imageMessage(payload string) oai.Message {
	return oai.Message{
		Role: oai.RoleUser,
		Content: []any{
			map[string]any{"type": "text", "text": "what is this?"},
			map[string]any{"type": "image_url", "image_url": map[string]any{
				"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload)),
			}},
		},
	}
}

func imageURL(t *testing.T, msg oai.Message) string {
	t.Helper()
	parts := msg.Content.([]any)
	part := parts[1].(map[string]any)
	return part["image_url"].(map[string]any)["url"].(string)
}

func TestExternalizeReplacesDataURL(t *testing.T) {
	up := &countingUploader{}
	ext := NewMediaExternalizer(up, nil)

	msgs := []oai.Message{imageMessage("pixels")}
	ext.Externalize(context.Background(), msgs)

	if got := imageURL(t, msgs[0]); got != "https://media.example/1" {
		t.Fatalf("url = %q", got)
	}
}

func TestExternalizeCachesByContentHash(t *testing.T) {
	up := &countingUploader{}
	ext := NewMediaExternalizer(up, nil)

	msgs := []oai.Message{imageMessage("same"), imageMessage("same")}
	ext.Externalize(context.Background(), msgs)

	if up.uploads != 1 {
		t.Fatalf("uploads = %d, want 1 (content-hash cache)", up.uploads)
	}
	if imageURL(t, msgs[0]) != imageURL(t, msgs[1]) {
		t.Fatal("identical content got different URLs")
	}
}

func TestExternalizeKeepsInlineOnFailure(t *testing.T) {
	ext := NewMediaExternalizer(&countingUploader{fail: true}, nil)

	msgs := []oai.Message{imageMessage("pixels")}
	ext.Externalize(context.Background(), msgs)

	if got := imageURL(t, msgs[0]); got[:5] != "data:" {
		t.Fatalf("inline payload lost on upload failure: %q", got)
	}
}

func TestExternalizeIgnoresRemoteURLs(t *testing.T) {
	up := &countingUploader{}
	ext := NewMediaExternalizer(up, nil)

	msgs := []oai.Message{{
		Role: oai.RoleUser,
		Content: []any{
			map[string]any{"type": "image_url", "image_url": map[string]any{
				"url": "https://example.com/cat.png",
			}},
		},
	}}
	ext.Externalize(context.Background(), msgs)

	if up.uploads != 0 {
		t.Fatal("remote URL was uploaded")
	}
}
