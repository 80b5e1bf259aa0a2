package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ServerStatus is the registry's view of one server.
type ServerStatus string

const (
	StatusOnline  ServerStatus = "online"
	StatusOffline ServerStatus = "offline"
)

// ServerState is a snapshot of one server for the admin surface.
type ServerState struct {
	Name      string       `json:"name"`
	URL       string       `json:"url"`
	Status    ServerStatus `json:"status"`
	Tools     []Tool       `json:"tools"`
	LastError string       `json:"last_error,omitempty"`
}

// RegistryTool is a tool joined with its owning server and enablement.
type RegistryTool struct {
	Tool
	Server  string `json:"server"`
	Enabled bool   `json:"enabled"`
	Online  bool   `json:"online"`
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// StatePath is the JSON file persisting per-tool enabled flags. Empty
	// disables persistence.
	StatePath string

	Logger *slog.Logger
}

type serverEntry struct {
	client    *Client
	status    ServerStatus
	tools     []Tool
	lastError string
}

// Registry tracks MCP servers, their advertised tools, and which tools the
// operator has switched off.
type Registry struct {
	mu      sync.RWMutex
	servers []*serverEntry

	// disabled holds explicit off-switches. Tools default to enabled, so
	// only user decisions are stored and a refresh cannot erase them.
	disabled map[string]bool

	statePath string
	logger    *slog.Logger
}

// NewRegistry builds a Registry over the given clients and loads persisted
// tool toggles.
func NewRegistry(clients []*Client, opts RegistryOptions) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Registry{
		disabled:  make(map[string]bool),
		statePath: opts.StatePath,
		logger:    opts.Logger,
	}
	for _, c := range clients {
		r.servers = append(r.servers, &serverEntry{client: c, status: StatusOffline})
	}
	r.loadState()
	return r
}

// Refresh re-handshakes every server and refreshes its tool list. A server
// that fails goes offline but keeps its cached tools, so the admin surface
// can still show what it would offer.
func (r *Registry) Refresh(ctx context.Context) {
	var wg sync.WaitGroup
	for _, entry := range r.servers {
		wg.Add(1)
		go func(entry *serverEntry) {
			defer wg.Done()
			r.refreshServer(ctx, entry)
		}(entry)
	}
	wg.Wait()
}

func (r *Registry) refreshServer(ctx context.Context, entry *serverEntry) {
	client := entry.client
	err := client.Initialize(ctx)
	var tools []Tool
	if err == nil {
		tools, err = client.ListTools(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		entry.status = StatusOffline
		entry.lastError = err.Error()
		r.logger.Warn("mcp server offline", "server", client.Name(), "error", err)
		return
	}
	entry.status = StatusOnline
	entry.tools = tools
	entry.lastError = ""
	r.logger.Info("mcp server refreshed", "server", client.Name(), "tools", len(tools))
}

// Servers snapshots every server's state.
func (r *Registry) Servers() []ServerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServerState, 0, len(r.servers))
	for _, entry := range r.servers {
		out = append(out, ServerState{
			Name:      entry.client.Name(),
			URL:       entry.client.URL(),
			Status:    entry.status,
			Tools:     append([]Tool(nil), entry.tools...),
			LastError: entry.lastError,
		})
	}
	return out
}

// Tools lists every known tool with its server and enablement, sorted by
// name for stable admin output.
func (r *Registry) Tools() []RegistryTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []RegistryTool
	for _, entry := range r.servers {
		for _, tool := range entry.tools {
			out = append(out, RegistryTool{
				Tool:    tool,
				Server:  entry.client.Name(),
				Enabled: !r.disabled[tool.Name],
				Online:  entry.status == StatusOnline,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ActiveTools lists the tools a driver may actually call: enabled tools on
// online servers.
func (r *Registry) ActiveTools() []RegistryTool {
	var out []RegistryTool
	for _, tool := range r.Tools() {
		if tool.Enabled && tool.Online {
			out = append(out, tool)
		}
	}
	return out
}

// SetToolEnabled flips one tool's switch and persists the decision.
func (r *Registry) SetToolEnabled(name string, enabled bool) error {
	r.mu.Lock()
	if enabled {
		delete(r.disabled, name)
	} else {
		r.disabled[name] = true
	}
	r.mu.Unlock()
	return r.persist()
}

// Client returns the online server that owns the named tool.
func (r *Registry) Client(tool string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.servers {
		if entry.status != StatusOnline {
			continue
		}
		for _, t := range entry.tools {
			if t.Name == tool {
				return entry.client, true
			}
		}
	}
	return nil, false
}

// persistedState is the on-disk toggle file.
type persistedState struct {
	DisabledTools []string `json:"disabled_tools"`
}

func (r *Registry) loadState() {
	if r.statePath == "" {
		return
	}
	raw, err := os.ReadFile(r.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("failed to read tool state", "path", r.statePath, "error", err)
		}
		return
	}
	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		r.logger.Warn("ignoring corrupt tool state", "path", r.statePath, "error", err)
		return
	}
	r.mu.Lock()
	for _, name := range state.DisabledTools {
		r.disabled[name] = true
	}
	r.mu.Unlock()
}

func (r *Registry) persist() error {
	if r.statePath == "" {
		return nil
	}
	r.mu.RLock()
	state := persistedState{DisabledTools: make([]string, 0, len(r.disabled))}
	for name := range r.disabled {
		state.DisabledTools = append(state.DisabledTools, name)
	}
	r.mu.RUnlock()
	sort.Strings(state.DisabledTools)

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(r.statePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	return os.WriteFile(r.statePath, raw, 0o644)
}
