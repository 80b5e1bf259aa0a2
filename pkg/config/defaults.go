package config

import "time"

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "0.0.0.0:8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 60 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 600 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Keys.Dir == "" {
		cfg.Keys.Dir = "keys_pool"
	}
	if cfg.Keys.AcquireTimeout == 0 {
		cfg.Keys.AcquireTimeout = 15 * time.Second
	}
	if cfg.Keys.QuarantineTTL == 0 {
		cfg.Keys.QuarantineTTL = 300 * time.Second
	}
	if cfg.Keys.SweepSchedule == "" {
		cfg.Keys.SweepSchedule = "*/10 * * * * *"
	}

	for name, provider := range cfg.Providers {
		if provider.Type == "" {
			provider.Type = ProviderTypeOpenAI
		}
		if provider.Timeout == 0 {
			provider.Timeout = 300 * time.Second
		}
		if provider.StreamTimeout == 0 {
			provider.StreamTimeout = 600 * time.Second
		}
		cfg.Providers[name] = provider
	}

	for name, alias := range cfg.Aliases {
		if alias.MainLength == 0 {
			alias.MainLength = 1
		}
		cfg.Aliases[name] = alias
	}

	trueVal := true
	for name, agent := range cfg.Agents {
		if agent.MaxIterations == 0 {
			agent.MaxIterations = 10
		}
		if agent.ToolsEnabled == nil {
			agent.ToolsEnabled = &trueVal
		}
		cfg.Agents[name] = agent
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.SQLitePath == "" {
		cfg.Cache.SQLitePath = "data/cache.db"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 4096
	}

	if cfg.Session.LeaseTTL == 0 {
		cfg.Session.LeaseTTL = 60 * time.Second
	}
	if cfg.Session.TaskTTL == 0 {
		cfg.Session.TaskTTL = 30 * time.Minute
	}

	trueDefault := true
	if cfg.Tools.RegistryPath == "" {
		cfg.Tools.RegistryPath = "tools.json"
	}
	if cfg.Tools.Watch == nil {
		cfg.Tools.Watch = &trueDefault
	}

	if cfg.MCP.StatePath == "" {
		cfg.MCP.StatePath = "mcp_tools.json"
	}
	if cfg.MCP.RefreshSchedule == "" {
		cfg.MCP.RefreshSchedule = "0 */5 * * * *"
	}
	if cfg.MCP.ConnectTimeout == 0 {
		cfg.MCP.ConnectTimeout = 10 * time.Second
	}
	if cfg.MCP.CallTimeout == 0 {
		cfg.MCP.CallTimeout = 60 * time.Second
	}

	if cfg.Media.Timeout == 0 {
		cfg.Media.Timeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Enabled == nil {
		cfg.Metrics.Enabled = &trueDefault
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
