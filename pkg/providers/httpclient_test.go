package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientBudgetsSplitUnaryAndStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(80 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient("groq", server.URL, ClientOptions{
		UnaryTimeout:  20 * time.Millisecond,
		StreamTimeout: 2 * time.Second,
	})

	// The unary budget expires before the response arrives.
	var out struct {
		OK bool `json:"ok"`
	}
	err := client.PostJSON(context.Background(), "/chat", nil, map[string]any{}, &out)
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("got %v, want TimeoutError", err)
	}

	// The same exchange under the stream budget completes; the body stays
	// readable past the unary deadline.
	resp, err := client.Post(context.Background(), "/chat", nil, map[string]any{})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil || !strings.Contains(string(body), `"ok"`) {
		t.Fatalf("ReadAll = (%q, %v)", body, err)
	}
}

func TestClientZeroBudgetLeavesCallerDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient("groq", server.URL, ClientOptions{})
	if err := client.PostJSON(context.Background(), "/chat", nil, map[string]any{}, nil); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.PostJSON(ctx, "/chat", nil, map[string]any{}, nil)
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("got %v, want TimeoutError from the caller's context", err)
	}
}

func TestClientWithBaseURLOverride(t *testing.T) {
	var hits int
	override := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(override.Close)

	client := NewClient("groq", "http://unreachable.invalid", ClientOptions{})
	if err := client.WithBaseURL(override.URL).PostJSON(context.Background(), "/chat", nil, map[string]any{}, nil); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if hits != 1 {
		t.Fatalf("override hits = %d, want 1", hits)
	}
	if client.baseURL != "http://unreachable.invalid" {
		t.Fatalf("original client mutated: %q", client.baseURL)
	}
}
