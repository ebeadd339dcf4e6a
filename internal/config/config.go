// Package config loads the extension runtime configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root runtime configuration.
type Config struct {
	Extensions ExtensionsConfig `yaml:"extensions"`
	State      StateConfig      `yaml:"state"`
	Log        LogConfig        `yaml:"log"`
}

// ExtensionsConfig controls extension loading.
type ExtensionsConfig struct {
	// Enabled controls whether extensions are loaded at all.
	Enabled bool `yaml:"enabled"`

	// Paths are directories searched for extension modules.
	Paths []string `yaml:"paths"`

	// Allow is an allowlist of extension ids. Empty means all allowed.
	Allow []string `yaml:"allow"`

	// Deny is a denylist of extension ids.
	Deny []string `yaml:"deny"`

	// Watch enables hot reload of changed extension directories.
	Watch bool `yaml:"watch"`

	// Entries holds per-extension settings keyed by manifest id.
	Entries map[string]EntryConfig `yaml:"entries"`
}

// EntryConfig is per-extension configuration.
type EntryConfig struct {
	Enabled *bool          `yaml:"enabled"`
	Config  map[string]any `yaml:"config"`
}

// StateConfig locates the durable extension state store.
type StateConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls host logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Extensions: ExtensionsConfig{Enabled: true},
		State:      StateConfig{Path: "loom-state.db"},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Allowed reports whether the extension id passes the allow/deny lists
// and its per-entry enable flag.
func (c ExtensionsConfig) Allowed(id string) (bool, string) {
	if !c.Enabled {
		return false, "extensions disabled"
	}
	for _, denied := range c.Deny {
		if denied == id {
			return false, "blocked by denylist"
		}
	}
	if len(c.Allow) > 0 {
		found := false
		for _, allowed := range c.Allow {
			if allowed == id {
				found = true
				break
			}
		}
		if !found {
			return false, "not in allowlist"
		}
	}
	if entry, ok := c.Entries[id]; ok {
		if entry.Enabled != nil && !*entry.Enabled {
			return false, "disabled in config"
		}
	}
	return true, ""
}
