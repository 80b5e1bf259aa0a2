// Package config defines the gateway configuration model and its loading
// pipeline: YAML file, optional sparse override file deep-merged on top,
// RELAY_* environment overrides, defaults, then validation.
package config
