package config

import "time"

// Provider adapter types.
const (
	ProviderTypeOpenAI = "openai"
	ProviderTypeGemini = "gemini"
)

// Agent reasoning modes.
const (
	ReasoningModeNative = "native"
	ReasoningModeReAct  = "react"
)

// Config is the root configuration for the relay gateway.
type Config struct {
	// Server contains the HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Auth configures bearer authentication on the OpenAI-compatible
	// surface.
	Auth AuthConfig `yaml:"auth"`

	// Redis configures the shared durable backend used by the rotation
	// index, the session store, and the Gemini state stores. Optional:
	// every consumer degrades to in-process state when unset or down.
	Redis RedisConfig `yaml:"redis"`

	// Keys configures the credential pool manager.
	Keys KeysConfig `yaml:"keys"`

	// Providers maps provider names to their upstream endpoints.
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Profiles maps profile names to a provider plus its model variants.
	// Fallback chains are built from profile names.
	Profiles map[string]ProfileConfig `yaml:"profiles"`

	// Aliases maps public model names to fallback chains.
	Aliases map[string]AliasConfig `yaml:"aliases"`

	// Agents maps public model names to reasoning driver configurations.
	// Agent aliases appear in /v1/models with is_agent set.
	Agents map[string]AgentConfig `yaml:"agents"`

	// Cache configures the response cache.
	Cache CacheConfig `yaml:"cache"`

	// Session configures agent session leasing and task state.
	Session SessionConfig `yaml:"session"`

	// Tools configures the native tool registry.
	Tools ToolsConfig `yaml:"tools"`

	// MCP configures remote MCP tool servers.
	MCP MCPConfig `yaml:"mcp"`

	// Media configures externalization of inline base64 images.
	Media MediaConfig `yaml:"media"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Mock short-circuits provider calls with a scripted stream, for load
	// testing the gateway itself.
	Mock MockConfig `yaml:"mock"`
}

// ServerConfig contains the HTTP server configuration.
type ServerConfig struct {
	// ListenAddress is "host:port" the gateway binds to.
	// Default: "0.0.0.0:8000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading the request including the body.
	// Default: 60s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds response writes. Streaming responses need
	// headroom for long generations.
	// Default: 600s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive waits.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CORS toggles permissive CORS headers for browser clients.
	// Default: true
	CORS bool `yaml:"cors"`
}

// AuthConfig configures bearer authentication.
type AuthConfig struct {
	// Enabled controls whether requests must carry the bearer token.
	// When false every request is accepted.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Token is the expected bearer token. Required when Enabled.
	Token string `yaml:"token"`
}

// RedisConfig configures the optional Redis backend.
type RedisConfig struct {
	// Addr is "host:port". Empty disables Redis entirely.
	Addr string `yaml:"addr"`

	// Password for AUTH, if the server requires one.
	Password string `yaml:"password"`

	// DB selects the logical database.
	// Default: 0
	DB int `yaml:"db"`
}

// KeysConfig configures the credential pool manager.
type KeysConfig struct {
	// Dir holds the key files, one "<provider>_<tier>.env" per pool.
	// Default: "keys_pool"
	Dir string `yaml:"dir"`

	// AcquireTimeout bounds how long a request waits for a key.
	// Default: 15s
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	// QuarantineTTL is the suspension period after a transient failure.
	// Default: 300s
	QuarantineTTL time.Duration `yaml:"quarantine_ttl"`

	// SweepSchedule is a seconds-resolution cron expression for the
	// quarantine sweep.
	// Default: "*/10 * * * * *"
	SweepSchedule string `yaml:"sweep_schedule"`
}

// ProviderConfig describes one upstream provider endpoint.
type ProviderConfig struct {
	// Type selects the adapter: "openai" (OpenAI-compatible wire) or
	// "gemini".
	// Default: "openai"
	Type string `yaml:"type"`

	// BaseURL is the upstream API root, e.g.
	// "https://api.groq.com/openai/v1".
	BaseURL string `yaml:"base_url"`

	// Timeout bounds a complete unary upstream request.
	// Default: 300s
	Timeout time.Duration `yaml:"timeout"`

	// StreamTimeout bounds a streaming request from dial to last byte.
	// Default: 600s
	StreamTimeout time.Duration `yaml:"stream_timeout"`

	// StripParams lists request fields this provider rejects; the policy
	// layer removes them before dispatch. Example: ["logprobs", "n"].
	StripParams []string `yaml:"strip_params"`

	// ExtraHeaders are added to every upstream request.
	ExtraHeaders map[string]string `yaml:"extra_headers"`
}

// ProfileConfig binds a provider to its interchangeable model variants.
type ProfileConfig struct {
	// Provider names an entry in Providers.
	Provider string `yaml:"provider"`

	// Models lists interchangeable upstream model names; successive
	// calls rotate through them. At least one required.
	Models []string `yaml:"models"`

	// Temperature, TopP, and MaxTokens are sampling defaults for this
	// profile, applied when the client request leaves them unset.
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	MaxTokens   *int     `yaml:"max_tokens"`

	// APIBase overrides the provider's endpoint for this profile only.
	APIBase string `yaml:"api_base"`
}

// AliasConfig is a fallback chain behind a public model name.
type AliasConfig struct {
	// Chain is the ordered list of profile names. The first MainLength
	// entries form the load-balanced main pool; the rest are strict
	// fallbacks tried in order.
	Chain []string `yaml:"chain"`

	// MainLength partitions the chain. Values outside [1, len(Chain)]
	// are clamped during validation.
	// Default: 1
	MainLength int `yaml:"main_length"`
}

// WaitingMessage is one entry in an agent's long-running-tool schedule.
type WaitingMessage struct {
	// After is how long a tool call must have been running before this
	// message is streamed to the client.
	After time.Duration `yaml:"after"`

	// Text is the message content.
	Text string `yaml:"text"`
}

// AgentConfig describes one reasoning agent alias.
type AgentConfig struct {
	// Mode selects the driver: "native" (provider tool calling) or
	// "react" (fuzzy-XML scratchpad loop).
	Mode string `yaml:"mode"`

	// Model is the alias the driver sends its own completions through.
	Model string `yaml:"model"`

	// SystemPrompt is prepended to the conversation. ReAct agents get
	// the scratchpad protocol appended to it.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxIterations bounds the reasoning loop.
	// Default: 10
	MaxIterations int `yaml:"max_iterations"`

	// ToolsEnabled exposes the active tool set to the driver. When
	// false the policy layer also strips tool parameters from requests.
	// Default: true
	ToolsEnabled *bool `yaml:"tools_enabled"`

	// Waiting is the schedule of reassurance messages streamed while a
	// tool call runs long.
	Waiting []WaitingMessage `yaml:"waiting"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Enabled controls whether unary responses are cached.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Backend is "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file for the sqlite backend.
	// Default: "data/cache.db"
	SQLitePath string `yaml:"sqlite_path"`

	// TTL is how long entries stay valid.
	// Default: 1h
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries caps the memory backend; oldest entries are evicted.
	// Default: 4096
	MaxEntries int `yaml:"max_entries"`
}

// SessionConfig configures agent session state.
type SessionConfig struct {
	// LeaseTTL is the exclusivity window for one agent turn.
	// Default: 60s
	LeaseTTL time.Duration `yaml:"lease_ttl"`

	// TaskTTL is how long draft/phase state survives between turns.
	// Default: 30m
	TaskTTL time.Duration `yaml:"task_ttl"`
}

// ToolsConfig configures the native tool registry.
type ToolsConfig struct {
	// RegistryPath is the JSON file holding per-tool enabled flags.
	// Default: "tools.json"
	RegistryPath string `yaml:"registry_path"`

	// Watch reloads the registry when the file changes.
	// Default: true
	Watch *bool `yaml:"watch"`
}

// MCPServerConfig describes one remote MCP server.
type MCPServerConfig struct {
	// Name identifies the server in tool routing and logs.
	Name string `yaml:"name"`

	// URL is the streamable HTTP endpoint.
	URL string `yaml:"url"`

	// Headers are added to every request (auth tokens and the like).
	Headers map[string]string `yaml:"headers"`
}

// MCPConfig configures the MCP registry.
type MCPConfig struct {
	// Servers lists the remote MCP servers to discover tools from.
	Servers []MCPServerConfig `yaml:"servers"`

	// StatePath is the JSON file persisting per-tool enabled flags across
	// restarts.
	// Default: "mcp_tools.json"
	StatePath string `yaml:"state_path"`

	// RefreshSchedule is a seconds-resolution cron expression for
	// re-discovering tools and server status.
	// Default: "0 */5 * * * *"
	RefreshSchedule string `yaml:"refresh_schedule"`

	// ConnectTimeout bounds the initialize handshake.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// CallTimeout bounds a single tool invocation.
	// Default: 60s
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// MediaConfig configures the upload service that replaces inline base64
// images with fetchable URLs before dispatch.
type MediaConfig struct {
	// UploadURL is the image-host endpoint receiving multipart uploads.
	// Empty disables externalization; inline payloads pass through.
	UploadURL string `yaml:"upload_url"`

	// APIKey authenticates uploads.
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single upload.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled controls whether /metrics is served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the scrape path.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// MockConfig short-circuits provider calls for load testing.
type MockConfig struct {
	// Enabled replaces every upstream call with a scripted stream.
	// Also settable through RELAY_MOCK_MODE.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Script is the sequence of content chunks the mock stream emits.
	Script []string `yaml:"script"`
}
