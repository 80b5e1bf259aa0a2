package config

import (
	"fmt"
	"net"
	"net/url"
)

// Validate checks cross-field consistency after defaults are applied. It
// returns the first problem found; a failed validation at startup is fatal.
func Validate(cfg *Config) error {
	if _, _, err := net.SplitHostPort(cfg.Server.ListenAddress); err != nil {
		return fmt.Errorf("server.listen_address %q: %w", cfg.Server.ListenAddress, err)
	}
	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		return fmt.Errorf("auth.enabled requires auth.token")
	}

	for name, provider := range cfg.Providers {
		switch provider.Type {
		case ProviderTypeOpenAI, ProviderTypeGemini:
		default:
			return fmt.Errorf("providers.%s: unknown type %q", name, provider.Type)
		}
		if provider.BaseURL == "" {
			return fmt.Errorf("providers.%s: base_url is required", name)
		}
		if _, err := url.Parse(provider.BaseURL); err != nil {
			return fmt.Errorf("providers.%s: base_url: %w", name, err)
		}
	}

	for name, profile := range cfg.Profiles {
		if _, ok := cfg.Providers[profile.Provider]; !ok {
			return fmt.Errorf("profiles.%s: unknown provider %q", name, profile.Provider)
		}
		if len(profile.Models) == 0 {
			return fmt.Errorf("profiles.%s: at least one model is required", name)
		}
	}

	for name, alias := range cfg.Aliases {
		if len(alias.Chain) == 0 {
			return fmt.Errorf("aliases.%s: chain is empty", name)
		}
		for _, profile := range alias.Chain {
			if _, ok := cfg.Profiles[profile]; !ok {
				return fmt.Errorf("aliases.%s: unknown profile %q", name, profile)
			}
		}
		// Clamp rather than reject: a stale main_length must not take the
		// alias down.
		if alias.MainLength < 1 {
			alias.MainLength = 1
			cfg.Aliases[name] = alias
		}
		if alias.MainLength > len(alias.Chain) {
			alias.MainLength = len(alias.Chain)
			cfg.Aliases[name] = alias
		}
	}

	for name, agent := range cfg.Agents {
		switch agent.Mode {
		case ReasoningModeNative, ReasoningModeReAct:
		default:
			return fmt.Errorf("agents.%s: unknown mode %q", name, agent.Mode)
		}
		if _, ok := cfg.Aliases[agent.Model]; !ok {
			return fmt.Errorf("agents.%s: unknown model alias %q", name, agent.Model)
		}
		if _, clash := cfg.Aliases[name]; clash {
			return fmt.Errorf("agents.%s: name collides with a model alias", name)
		}
	}

	switch cfg.Cache.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("cache.backend: unknown backend %q", cfg.Cache.Backend)
	}

	for i, server := range cfg.MCP.Servers {
		if server.Name == "" {
			return fmt.Errorf("mcp.servers[%d]: name is required", i)
		}
		if server.URL == "" {
			return fmt.Errorf("mcp.servers[%d]: url is required", i)
		}
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format: unknown format %q", cfg.Logging.Format)
	}

	return nil
}
