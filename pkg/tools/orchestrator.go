package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"lumen-hq/relay/pkg/mcp"
	"lumen-hq/relay/pkg/oai"
	"lumen-hq/relay/pkg/telemetry/metrics"
)

// UnknownToolError means no native or remote tool matched, even fuzzily.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tools: no tool matches %q", e.Name)
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	// Natives are the compiled-in tools.
	Natives []Native

	// Registry gates natives on/off. Nil means everything is enabled.
	Registry *Registry

	// MCP supplies remote tools. Nil means natives only.
	MCP *mcp.Registry

	// BreakerTimeout is how long a tripped server breaker stays open.
	// Default: 30s
	BreakerTimeout time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Orchestrator resolves tool names and dispatches calls.
type Orchestrator struct {
	natives  map[string]Native
	registry *Registry
	mcp      *mcp.Registry

	// breakers guard MCP servers, not individual tools: when a server is
	// down every one of its tools fails the same way.
	breakerMu      sync.Mutex
	breakers       map[string]*gobreaker.CircuitBreaker
	breakerTimeout time.Duration

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	natives := make(map[string]Native, len(opts.Natives))
	for _, n := range opts.Natives {
		natives[n.Name()] = n
	}
	return &Orchestrator{
		natives:        natives,
		registry:       opts.Registry,
		mcp:            opts.MCP,
		breakers:       make(map[string]*gobreaker.CircuitBreaker),
		breakerTimeout: opts.BreakerTimeout,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
	}
}

// Definitions returns the active tools as OpenAI function declarations:
// enabled natives plus enabled tools on online MCP servers.
func (o *Orchestrator) Definitions() []oai.Tool {
	var out []oai.Tool
	for name, native := range o.natives {
		if !o.nativeEnabled(name) {
			continue
		}
		out = append(out, oai.Tool{
			Type: oai.ToolTypeFunction,
			Function: oai.FunctionDefinition{
				Name:        native.Name(),
				Description: native.Description(),
				Parameters:  native.Parameters(),
			},
		})
	}
	if o.mcp != nil {
		for _, tool := range o.mcp.ActiveTools() {
			out = append(out, oai.Tool{
				Type: oai.ToolTypeFunction,
				Function: oai.FunctionDefinition{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.InputSchema,
				},
			})
		}
	}
	return out
}

// Dispatch resolves name and runs the tool with the JSON-encoded arguments.
// The result is the observation text for the model.
func (o *Orchestrator) Dispatch(ctx context.Context, name, argsJSON string) (string, error) {
	args := map[string]any{}
	if trimmed := strings.TrimSpace(argsJSON); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return "", fmt.Errorf("tools: arguments for %q are not a JSON object: %w", name, err)
		}
	}

	resolved, kind := o.resolve(name)
	if kind == targetNone {
		o.metrics.RecordToolCall(name, "error")
		return "", &UnknownToolError{Name: name}
	}
	if resolved != name {
		o.logger.Debug("fuzzy tool match", "requested", name, "resolved", resolved)
	}

	var out string
	var err error
	switch kind {
	case targetNative:
		out, err = o.natives[resolved].Invoke(ctx, args)
	case targetMCP:
		out, err = o.callRemote(ctx, resolved, args)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordToolCall(resolved, status)
	return out, err
}

func (o *Orchestrator) callRemote(ctx context.Context, tool string, args map[string]any) (string, error) {
	client, ok := o.mcp.Client(tool)
	if !ok {
		return "", &UnknownToolError{Name: tool}
	}
	breaker := o.breaker(client.Name())
	out, err := breaker.Execute(func() (any, error) {
		return client.CallTool(ctx, tool, args)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// breaker returns the circuit breaker for an MCP server, creating it on
// first use. Parallel tool dispatches share one breaker per server.
func (o *Orchestrator) breaker(server string) *gobreaker.CircuitBreaker {
	o.breakerMu.Lock()
	defer o.breakerMu.Unlock()
	if cb, ok := o.breakers[server]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    server,
		Timeout: o.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn("mcp breaker state change",
				"server", name, "from", from.String(), "to", to.String())
		},
	})
	o.breakers[server] = cb
	return cb
}

type target int

const (
	targetNone target = iota
	targetNative
	targetMCP
)

// resolve finds the tool a (possibly mangled) name refers to. Qualified
// "server::tool" names route by server; bare names match exactly first,
// then through a normalized comparison that forgives case, separator, and
// singular/plural drift.
func (o *Orchestrator) resolve(name string) (string, target) {
	if server, tool, ok := strings.Cut(name, "::"); ok {
		return o.resolveQualified(server, tool)
	}
	if _, ok := o.natives[name]; ok && o.nativeEnabled(name) {
		return name, targetNative
	}
	if o.remoteActive(name) {
		return name, targetMCP
	}

	want := normalizeTool(name)
	for candidate := range o.natives {
		if !o.nativeEnabled(candidate) {
			continue
		}
		if namesMatch(want, normalizeTool(candidate)) {
			return candidate, targetNative
		}
	}
	if o.mcp != nil {
		for _, tool := range o.mcp.ActiveTools() {
			if namesMatch(want, normalizeTool(tool.Name)) {
				return tool.Name, targetMCP
			}
		}
	}
	return "", targetNone
}

// resolveQualified matches a server-qualified tool against the active MCP
// set. The server segment tolerates the same case, separator, and plural
// drift as tool names.
func (o *Orchestrator) resolveQualified(server, tool string) (string, target) {
	if o.mcp == nil {
		return "", targetNone
	}
	wantServer := normalizeTool(server)
	wantTool := normalizeTool(tool)
	for _, candidate := range o.mcp.ActiveTools() {
		if !namesMatch(wantServer, normalizeTool(candidate.Server)) {
			continue
		}
		if candidate.Name == tool || namesMatch(wantTool, normalizeTool(candidate.Name)) {
			return candidate.Name, targetMCP
		}
	}
	return "", targetNone
}

func (o *Orchestrator) nativeEnabled(name string) bool {
	return o.registry == nil || o.registry.Enabled(name)
}

func (o *Orchestrator) remoteActive(name string) bool {
	if o.mcp == nil {
		return false
	}
	for _, tool := range o.mcp.ActiveTools() {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// normalizeTool lowers the name and unifies separators.
func normalizeTool(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

// namesMatch compares normalized names, treating singular and plural forms
// as the same tool ("search_doc" finds "search_docs" and vice versa).
func namesMatch(a, b string) bool {
	if a == b {
		return true
	}
	return singular(a) == singular(b)
}

func singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ies"):
		return strings.TrimSuffix(name, "ies") + "y"
	case strings.HasSuffix(name, "es"):
		return strings.TrimSuffix(name, "es")
	case strings.HasSuffix(name, "s"):
		return strings.TrimSuffix(name, "s")
	}
	return name
}
