package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"lumen-hq/relay/pkg/cache/storage"
	"lumen-hq/relay/pkg/oai"
)

func userRequest(text string) oai.ChatCompletionRequest {
	return oai.ChatCompletionRequest{
		Messages: []oai.Message{{Role: oai.RoleUser, Content: text}},
	}
}

func completion(text string) *oai.ChatCompletionResponse {
	return &oai.ChatCompletionResponse{
		Choices: []oai.ChatCompletionChoice{{
			Message:      oai.Message{Role: oai.RoleAssistant, Content: text},
			FinishReason: oai.FinishReasonStop,
		}},
	}
}

func newTestCache() *Cache {
	return New(storage.NewMemoryBackend(16), Options{TTL: time.Minute})
}

func TestStoreAndLookup(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	req := userRequest("what is a monad")

	if _, ok := c.Lookup(ctx, "chat", req); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	c.Store(ctx, "chat", req, completion("a monoid in the category of endofunctors"))

	got, ok := c.Lookup(ctx, "chat", req)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Choices[0].Message.ContentText() != "a monoid in the category of endofunctors" {
		t.Fatalf("cached response = %+v", got)
	}
}

func TestFingerprintSeparatesAliases(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	req := userRequest("hello")

	c.Store(ctx, "fast", req, completion("from fast"))
	if _, ok := c.Lookup(ctx, "smart", req); ok {
		t.Fatal("aliases must not share entries")
	}
}

func TestFingerprintIgnoresCosmeticFields(t *testing.T) {
	base := userRequest("hello")
	streaming := base
	streaming.Stream = true
	streaming.User = "someone"

	if Fingerprint("chat", base) != Fingerprint("chat", streaming) {
		t.Fatal("stream/user must not change the fingerprint")
	}

	temp := 0.2
	warmer := base
	warmer.Temperature = &temp
	if Fingerprint("chat", base) == Fingerprint("chat", warmer) {
		t.Fatal("temperature must change the fingerprint")
	}
}

func TestAdmissionRejectsErrorResponses(t *testing.T) {
	tests := []struct {
		name string
		resp *oai.ChatCompletionResponse
	}{
		{"nil", nil},
		{"no choices", &oai.ChatCompletionResponse{}},
		{"empty content", completion("")},
		{"error signature", completion("Internal Server Error")},
		{"json error object", completion(`{"error": {"message": "boom"}}`)},
		{"failure status code", completion(`{"status_code": 503, "detail": "try later"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if admissible(tt.resp) {
				t.Fatal("response admitted")
			}
		})
	}

	if !admissible(completion(`{"status_code": 200, "data": "fine"}`)) {
		t.Fatal("healthy JSON content rejected")
	}
	toolResp := &oai.ChatCompletionResponse{
		Choices: []oai.ChatCompletionChoice{{
			Message: oai.Message{
				Role: oai.RoleAssistant,
				ToolCalls: []oai.ToolCall{{
					ID: "call_1", Type: oai.ToolTypeFunction,
					Function: oai.FunctionCall{Name: "f", Arguments: "{}"},
				}},
			},
			FinishReason: oai.FinishReasonToolCalls,
		}},
	}
	if !admissible(toolResp) {
		t.Fatal("tool-call response rejected")
	}
}

func TestStoreDropsInadmissible(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()
	req := userRequest("hi")

	c.Store(ctx, "chat", req, completion("rate limit exceeded, please retry"))
	if _, ok := c.Lookup(ctx, "chat", req); ok {
		t.Fatal("error response was cached")
	}
}

func TestLookupPurgesPoisonedEntry(t *testing.T) {
	backend := storage.NewMemoryBackend(16)
	c := New(backend, Options{TTL: time.Minute})
	ctx := context.Background()
	req := userRequest("hi")

	// Plant an entry that would fail today's admission check, as if it were
	// written before a validator fix.
	key := Fingerprint("chat", req)
	payload, _ := json.Marshal(completion("Internal Server Error"))
	backend.Set(ctx, key, string(payload), time.Minute)

	if _, ok := c.Lookup(ctx, "chat", req); ok {
		t.Fatal("poisoned entry served")
	}
	if _, ok, _ := backend.Get(ctx, key); ok {
		t.Fatal("poisoned entry not purged")
	}
}

func TestMemoryBackendEvictsOldest(t *testing.T) {
	backend := storage.NewMemoryBackend(2)
	ctx := context.Background()

	backend.Set(ctx, "a", "1", time.Minute)
	backend.Set(ctx, "b", "2", time.Minute)
	backend.Set(ctx, "c", "3", time.Minute)

	if _, ok, _ := backend.Get(ctx, "a"); ok {
		t.Fatal("oldest entry survived past the cap")
	}
	if _, ok, _ := backend.Get(ctx, "c"); !ok {
		t.Fatal("newest entry missing")
	}
}
