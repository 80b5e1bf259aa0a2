package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"lumen-hq/relay/pkg/providers"
)

// ProtocolVersion is the MCP revision this client speaks.
const ProtocolVersion = "2025-06-18"

// Default timeouts, overridable through ClientOptions.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultCallTimeout    = 60 * time.Second
)

// Tool is one callable advertised by an MCP server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// RPCError is a JSON-RPC error returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp: rpc error %d: %s", e.Code, e.Message)
}

// ToolFailedError is a tools/call result flagged isError by the server. The
// content is the tool's own failure report, which drivers feed back to the
// model as an observation.
type ToolFailedError struct {
	Tool    string
	Content string
}

func (e *ToolFailedError) Error() string {
	return fmt.Sprintf("mcp: tool %q failed: %s", e.Tool, e.Content)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Headers are added to every request.
	Headers map[string]string

	// ConnectTimeout bounds the initialize handshake. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// CallTimeout bounds one tool invocation. Zero means
	// DefaultCallTimeout.
	CallTimeout time.Duration

	Logger *slog.Logger
}

// Client talks to one MCP server over streamable HTTP.
type Client struct {
	name    string
	url     string
	headers map[string]string
	http    *http.Client

	connectTimeout time.Duration
	callTimeout    time.Duration
	logger         *slog.Logger

	sessionID atomic.Value // string
	nextID    atomic.Int64
}

// NewClient builds a Client for the server at url.
func NewClient(name, url string, opts ClientOptions) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		name:           name,
		url:            url,
		headers:        opts.Headers,
		http:           &http.Client{},
		connectTimeout: opts.ConnectTimeout,
		callTimeout:    opts.CallTimeout,
		logger:         opts.Logger.With("mcp_server", name),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// URL returns the server endpoint.
func (c *Client) URL() string { return c.url }

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Initialize performs the MCP handshake and captures the session id the
// server assigns. It must succeed before tools/list or tools/call.
func (c *Client) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "relay", "version": "1.0"},
	}, &result)
	if err != nil {
		return err
	}
	c.logger.Debug("mcp session established",
		"server_name", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)

	// The initialized notification completes the handshake. Some servers
	// refuse tool calls without it.
	return c.notify(ctx, "notifications/initialized")
}

// ListTools returns the server's advertised tools.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes one tool and returns its text content. Results flagged
// isError come back as ToolFailedError carrying the content.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	if args == nil {
		args = map[string]any{}
	}
	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	err := c.call(ctx, "tools/call", map[string]any{
		"name":      tool,
		"arguments": args,
	}, &result)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, item := range result.Content {
		if item.Type == "text" && item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return "", &ToolFailedError{Tool: tool, Content: text}
	}
	return text, nil
}

// call sends one JSON-RPC request and decodes the matching response into
// out, handling both JSON and SSE response bodies.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	id := c.nextID.Add(1)
	resp, err := c.post(ctx, rpcRequest{Jsonrpc: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		c.sessionID.Store(sid)
	}

	rpc, err := c.decodeResponse(resp, id)
	if err != nil {
		return err
	}
	if rpc.Error != nil {
		return rpc.Error
	}
	if out != nil && len(rpc.Result) > 0 {
		if err := json.Unmarshal(rpc.Result, out); err != nil {
			return &providers.ParseError{Provider: c.name, Raw: string(rpc.Result), Cause: err}
		}
	}
	return nil
}

// notify sends a JSON-RPC notification (no id, no response expected).
func (c *Client) notify(ctx context.Context, method string) error {
	resp, err := c.post(ctx, rpcRequest{Jsonrpc: "2.0", Method: method})
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) post(ctx context.Context, body rpcRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Mcp-Protocol-Version", ProtocolVersion)
	if sid, ok := c.sessionID.Load().(string); ok && sid != "" {
		req.Header.Set("Mcp-Session-Id", sid)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &providers.NetworkError{Provider: c.name, Cause: err}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &providers.UpstreamError{
			Provider:   c.name,
			StatusCode: resp.StatusCode,
			Message:    string(raw),
		}
	}
	return resp, nil
}

// decodeResponse extracts the JSON-RPC response with the given id. SSE
// bodies are scanned event by event until the matching message arrives.
func (c *Client) decodeResponse(resp *http.Response, id int64) (*rpcResponse, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		var rpc rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
			return nil, &providers.ParseError{Provider: c.name, Cause: err}
		}
		return &rpc, nil
	}

	scanner := providers.NewSSEScanner(resp.Body)
	for {
		data, err := scanner.Next()
		if err == io.EOF {
			return nil, &providers.ParseError{
				Provider: c.name,
				Cause:    fmt.Errorf("stream ended without response to request %d", id),
			}
		}
		if err != nil {
			return nil, err
		}
		var rpc rpcResponse
		if err := json.Unmarshal([]byte(data), &rpc); err != nil {
			c.logger.Warn("skipping malformed mcp event", "error", err)
			continue
		}
		// Servers may interleave notifications before the response.
		if rpc.ID != nil && *rpc.ID == id {
			return &rpc, nil
		}
	}
}
