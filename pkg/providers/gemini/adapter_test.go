package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/providers"
)

func newServerAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New("gemini", config.ProviderConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	}, NewMemoryStore(), nil, nil)
}

func TestChatUnaryToolCall(t *testing.T) {
	adapter := newServerAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "g-key" {
			t.Errorf("api key header = %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[
			{"functionCall":{"name":"get_weather","args":{"city":"Oslo"}},"thoughtSignature":"sig-1"}
		]},"finishReason":"STOP"}],
		"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`)
	})

	resp, err := adapter.Chat(context.Background(), providers.Request{
		Model: "gemini-pro",
		Key:   "g-key",
		Body: oai.ChatCompletionRequest{
			Messages: []oai.Message{{Role: oai.RoleUser, Content: "weather?"}},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Function.Name != "get_weather" {
		t.Fatalf("tool calls = %+v", msg.ToolCalls)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(msg.ToolCalls[0].Function.Arguments), &args); err != nil || args["city"] != "Oslo" {
		t.Fatalf("arguments = %q", msg.ToolCalls[0].Function.Arguments)
	}
	if resp.Choices[0].FinishReason != oai.FinishReasonToolCalls {
		t.Fatalf("finish reason = %q", resp.Choices[0].FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("usage = %+v", resp.Usage)
	}

	// The signature is stored under the fresh tool call id for the next
	// turn.
	if got := adapter.signatures.load(context.Background(), msg.ToolCalls[0].ID); got != "sig-1" {
		t.Fatalf("stored signature = %q", got)
	}
}

func TestChatStreamThoughtTranslation(t *testing.T) {
	adapter := newServerAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "alt=sse") {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"pondering","thought":true}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"answer"}]},"finishReason":"STOP"}]}`+"\n\n")
	})

	stream, err := adapter.ChatStream(context.Background(), providers.Request{Model: "gemini-pro", Key: "k"})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	defer stream.Close()

	first, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if first.Choices[0].Delta.ReasoningContent != "pondering" {
		t.Fatalf("thought part not mapped to reasoning: %+v", first.Choices[0].Delta)
	}

	second, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if second.Choices[0].Delta.Content != "answer" || second.Choices[0].FinishReason != oai.FinishReasonStop {
		t.Fatalf("final chunk = %+v", second.Choices[0])
	}

	if _, err := stream.Recv(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestContextCacheReusesPrefix(t *testing.T) {
	var cacheCreates, generateCalls int
	var lastBody generateRequest

	adapter := newServerAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/cachedContents"):
			cacheCreates++
			fmt.Fprint(w, `{"name":"cachedContents/abc"}`)
		default:
			generateCalls++
			json.NewDecoder(r.Body).Decode(&lastBody)
			fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`)
		}
	})

	big := strings.Repeat("lorem ipsum ", 1200) // well past the threshold
	body := oai.ChatCompletionRequest{
		Messages: []oai.Message{
			{Role: oai.RoleUser, Content: big},
			{Role: oai.RoleAssistant, Content: "noted"},
			{Role: oai.RoleUser, Content: "so?"},
		},
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := adapter.Chat(ctx, providers.Request{Model: "gemini-pro", Key: "k", Body: body}); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}

	if cacheCreates != 1 {
		t.Fatalf("cachedContents created %d times, want 1", cacheCreates)
	}
	if generateCalls != 2 {
		t.Fatalf("generate calls = %d", generateCalls)
	}
	if lastBody.CachedContent != "cachedContents/abc" {
		t.Fatalf("request did not reference the cache: %+v", lastBody.CachedContent)
	}
	if len(lastBody.Contents) != 1 {
		t.Fatalf("cached prefix not trimmed: %d contents", len(lastBody.Contents))
	}
}

func TestSmallConversationSkipsContextCache(t *testing.T) {
	var cacheCreates int
	adapter := newServerAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/cachedContents") {
			cacheCreates++
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`)
	})

	_, err := adapter.Chat(context.Background(), providers.Request{
		Model: "gemini-pro",
		Key:   "k",
		Body: oai.ChatCompletionRequest{
			Messages: []oai.Message{
				{Role: oai.RoleUser, Content: "short"},
				{Role: oai.RoleAssistant, Content: "ok"},
				{Role: oai.RoleUser, Content: "more"},
			},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if cacheCreates != 0 {
		t.Fatal("small conversation triggered context caching")
	}
}
