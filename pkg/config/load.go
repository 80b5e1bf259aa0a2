package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration from a YAML file, layers the optional sparse
// override file and RELAY_* environment variables on top, applies defaults,
// and validates the result.
//
// The override file holds only the fields being changed; it is deep-merged
// onto the base so a two-line override does not have to restate the whole
// document.
func Load(path, overridePath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration file %q: %w", path, err)
	}

	if overridePath != "" {
		if err := applyOverrideFile(&cfg, overridePath); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(&cfg)

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// applyOverrideFile deep-merges a sparse override document onto cfg. A
// missing override file is not an error.
func applyOverrideFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading override file %q: %w", path, err)
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing override file %q: %w", path, err)
	}
	if err := mergo.Merge(cfg, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging override file %q: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies RELAY_* environment variables. Environment
// always wins over both files.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("RELAY_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("RELAY_AUTH_TOKEN"); val != "" {
		cfg.Auth.Enabled = true
		cfg.Auth.Token = val
	}
	if val := os.Getenv("RELAY_REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
	}
	if val := os.Getenv("RELAY_REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("RELAY_KEYS_DIR"); val != "" {
		cfg.Keys.Dir = val
	}
	if val := os.Getenv("RELAY_KEYS_ACQUIRE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Keys.AcquireTimeout = d
		}
	}
	if val := os.Getenv("RELAY_KEYS_QUARANTINE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Keys.QuarantineTTL = d
		}
	}
	if val := os.Getenv("RELAY_CACHE_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if val := os.Getenv("RELAY_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("RELAY_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("RELAY_MOCK_MODE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Mock.Enabled = b
		}
	}
}
