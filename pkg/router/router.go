// Package router resolves public model aliases into effective fallback
// chains. The head of a chain rotates across the alias's main pool via the
// rotation index; the remaining fallbacks keep their configured order.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/rotation"
)

// AliasNotFoundError maps to HTTP 404 on the public surface.
type AliasNotFoundError struct {
	Alias string
}

func (e *AliasNotFoundError) Error() string {
	return fmt.Sprintf("router: unknown model alias %q", e.Alias)
}

// Profile is one resolved chain entry.
type Profile struct {
	// Name is the profile name from configuration.
	Name string

	// Provider names the upstream provider (key pool, adapter, metrics).
	Provider string

	// Models are the interchangeable upstream model names.
	Models []string

	// Temperature, TopP, and MaxTokens are the profile's sampling
	// defaults, applied when the client request leaves them unset.
	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	// APIBase overrides the provider's endpoint for this profile.
	APIBase string
}

// Route is the effective chain for one request: the rotated head followed
// by the strict fallbacks.
type Route struct {
	Alias    string
	Profiles []Profile
}

// Router resolves aliases against immutable configuration.
type Router struct {
	aliases  map[string]config.AliasConfig
	profiles map[string]config.ProfileConfig
	index    *rotation.Index
	logger   *slog.Logger
}

// New builds a Router. Configuration is validated before it gets here, so
// every chain entry is a known profile.
func New(cfg *config.Config, index *rotation.Index, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		aliases:  cfg.Aliases,
		profiles: cfg.Profiles,
		index:    index,
		logger:   logger,
	}
}

// Resolve returns the effective chain for alias: one profile picked from
// the main pool by the rotation index, then every fallback in configured
// order.
func (r *Router) Resolve(ctx context.Context, alias string) (Route, error) {
	ac, ok := r.aliases[alias]
	if !ok {
		return Route{}, &AliasNotFoundError{Alias: alias}
	}

	mainLength := ac.MainLength
	slot := r.index.NextSlot(ctx, alias, mainLength)
	if slot < 0 || slot >= mainLength {
		// A shrunk main pool can leave a stale counter value pointing past
		// the end; fall back to the first slot instead of failing.
		r.logger.Warn("rotation slot out of range, using head",
			"alias", alias, "slot", slot, "main_length", mainLength)
		slot = 0
	}

	profiles := make([]Profile, 0, 1+len(ac.Chain)-mainLength)
	profiles = append(profiles, r.profile(ac.Chain[slot]))
	for _, name := range ac.Chain[mainLength:] {
		profiles = append(profiles, r.profile(name))
	}
	return Route{Alias: alias, Profiles: profiles}, nil
}

// Aliases lists the configured alias names, sorted for stable output.
func (r *Router) Aliases() []string {
	names := make([]string, 0, len(r.aliases))
	for name := range r.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) profile(name string) Profile {
	pc := r.profiles[name]
	return Profile{
		Name:        name,
		Provider:    pc.Provider,
		Models:      pc.Models,
		Temperature: pc.Temperature,
		TopP:        pc.TopP,
		MaxTokens:   pc.MaxTokens,
		APIBase:     pc.APIBase,
	}
}
