package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"lumen-hq/relay/pkg/mcp"
)

func echoTool() Native {
	return &Func{
		ToolName:        "echo_message",
		ToolDescription: "Echo the message back.",
		ToolParameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"message": map[string]any{"type": "string"}},
		},
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return msg, nil
		},
	}
}

func TestDispatchNativeExact(t *testing.T) {
	o := NewOrchestrator(OrchestratorOptions{Natives: []Native{echoTool()}})
	out, err := o.Dispatch(context.Background(), "echo_message", `{"message":"hi"}`)
	if err != nil || out != "hi" {
		t.Fatalf("Dispatch = (%q, %v)", out, err)
	}
}

func TestDispatchFuzzyMatching(t *testing.T) {
	o := NewOrchestrator(OrchestratorOptions{Natives: []Native{echoTool()}})
	tests := []string{
		"Echo_Message",  // case drift
		"echo-message",  // separator drift
		"echo_messages", // plural drift
	}
	for _, name := range tests {
		out, err := o.Dispatch(context.Background(), name, `{"message":"ok"}`)
		if err != nil || out != "ok" {
			t.Fatalf("Dispatch(%q) = (%q, %v)", name, out, err)
		}
	}

	_, err := o.Dispatch(context.Background(), "completely_unrelated", "{}")
	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("got %v, want UnknownToolError", err)
	}
}

func TestDispatchRespectsRegistry(t *testing.T) {
	registryPath := t.TempDir() + "/tools.json"
	registry := NewRegistry(registryPath, nil)
	o := NewOrchestrator(OrchestratorOptions{Natives: []Native{echoTool()}, Registry: registry})

	if err := registry.SetEnabled("echo_message", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	// Force a reload from the file we just wrote.
	registry.reload()

	if _, err := o.Dispatch(context.Background(), "echo_message", "{}"); err == nil {
		t.Fatal("disabled tool dispatched")
	}
	if defs := o.Definitions(); len(defs) != 0 {
		t.Fatalf("disabled tool advertised: %+v", defs)
	}
}

func TestRegistryReloadFromDisk(t *testing.T) {
	registryPath := t.TempDir() + "/tools.json"
	registry := NewRegistry(registryPath, nil)
	if !registry.Enabled("echo_message") {
		t.Fatal("tools must default to enabled")
	}

	payload, _ := json.Marshal(registryFile{DisabledTools: []string{"echo_message"}})
	if err := os.WriteFile(registryPath, payload, 0o644); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	registry.reload()

	if registry.Enabled("echo_message") {
		t.Fatal("external edit not applied")
	}
}

func TestDispatchRemoteTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     *int64         `json:"id"`
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "initialize":
			writeRPC(w, req.ID, map[string]any{"protocolVersion": mcp.ProtocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			writeRPC(w, req.ID, map[string]any{
				"tools": []map[string]any{{"name": "search_docs"}},
			})
		case "tools/call":
			writeRPC(w, req.ID, map[string]any{
				"content": []map[string]any{{"type": "text", "text": "remote result"}},
			})
		}
	}))
	t.Cleanup(server.Close)

	client := mcp.NewClient("docs", server.URL, mcp.ClientOptions{})
	registry := mcp.NewRegistry([]*mcp.Client{client}, mcp.RegistryOptions{})
	registry.Refresh(context.Background())

	o := NewOrchestrator(OrchestratorOptions{MCP: registry})
	out, err := o.Dispatch(context.Background(), "search_doc", "{}") // singular drift
	if err != nil || out != "remote result" {
		t.Fatalf("Dispatch = (%q, %v)", out, err)
	}
}

func TestDispatchQualifiedName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     *int64         `json:"id"`
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "initialize":
			writeRPC(w, req.ID, map[string]any{"protocolVersion": mcp.ProtocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			writeRPC(w, req.ID, map[string]any{
				"tools": []map[string]any{{"name": "search_docs"}},
			})
		case "tools/call":
			writeRPC(w, req.ID, map[string]any{
				"content": []map[string]any{{"type": "text", "text": "remote result"}},
			})
		}
	}))
	t.Cleanup(server.Close)

	client := mcp.NewClient("docs", server.URL, mcp.ClientOptions{})
	registry := mcp.NewRegistry([]*mcp.Client{client}, mcp.RegistryOptions{})
	registry.Refresh(context.Background())

	o := NewOrchestrator(OrchestratorOptions{MCP: registry})

	out, err := o.Dispatch(context.Background(), "docs::search_docs", "{}")
	if err != nil || out != "remote result" {
		t.Fatalf("Dispatch qualified = (%q, %v)", out, err)
	}

	// The server segment forgives plural drift, the tool segment typos.
	out, err = o.Dispatch(context.Background(), "doc::search_doc", "{}")
	if err != nil || out != "remote result" {
		t.Fatalf("Dispatch fuzzy qualified = (%q, %v)", out, err)
	}

	if _, err := o.Dispatch(context.Background(), "wiki::search_docs", "{}"); err == nil {
		t.Fatal("expected unknown tool for wrong server")
	}
}

func writeRPC(w http.ResponseWriter, id *int64, result any) {
	raw, _ := json.Marshal(result)
	json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0", "id": id, "result": json.RawMessage(raw),
	})
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     *int64 `json:"id"`
			Method string `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "initialize":
			writeRPC(w, req.ID, map[string]any{"protocolVersion": mcp.ProtocolVersion})
		case "notifications/initialized":
			w.WriteHeader(http.StatusAccepted)
		case "tools/list":
			writeRPC(w, req.ID, map[string]any{
				"tools": []map[string]any{{"name": "flaky_tool"}},
			})
		case "tools/call":
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)

	client := mcp.NewClient("flaky", server.URL, mcp.ClientOptions{})
	registry := mcp.NewRegistry([]*mcp.Client{client}, mcp.RegistryOptions{})
	registry.Refresh(context.Background())

	o := NewOrchestrator(OrchestratorOptions{MCP: registry, BreakerTimeout: time.Minute})
	for i := 0; i < 5; i++ {
		if _, err := o.Dispatch(context.Background(), "flaky_tool", "{}"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if calls != 5 {
		t.Fatalf("upstream calls before trip = %d, want 5", calls)
	}

	_, err := o.Dispatch(context.Background(), "flaky_tool", "{}")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("got %v, want ErrOpenState", err)
	}
	if calls != 5 {
		t.Fatalf("open breaker still hit upstream: %d calls", calls)
	}
}
