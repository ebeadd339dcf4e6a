package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loom.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
extensions:
  enabled: true
  paths:
    - /opt/loom/extensions
  watch: true
  entries:
    code-indexer:
      enabled: true
      config:
        maxResults: 50
state:
  path: /var/lib/loom/state.db
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Extensions.Watch || len(cfg.Extensions.Paths) != 1 {
		t.Fatalf("unexpected extensions config: %+v", cfg.Extensions)
	}
	if cfg.State.Path != "/var/lib/loom/state.db" {
		t.Fatalf("unexpected state path: %q", cfg.State.Path)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	entry := cfg.Extensions.Entries["code-indexer"]
	if entry.Enabled == nil || !*entry.Enabled || entry.Config["maxResults"] != 50 {
		t.Fatalf("unexpected entry config: %+v", entry)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("LOOM_STATE_DIR", "/srv/loom")
	path := writeConfig(t, `
state:
  path: ${LOOM_STATE_DIR}/state.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.State.Path != "/srv/loom/state.db" {
		t.Fatalf("env not expanded: %q", cfg.State.Path)
	}
}

func TestLoadDefaultsPreserved(t *testing.T) {
	path := writeConfig(t, `
log:
  level: warn
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Fields absent from the file keep their defaults.
	if !cfg.Extensions.Enabled {
		t.Fatalf("extensions should default to enabled")
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestAllowed(t *testing.T) {
	off := false
	cases := []struct {
		name string
		cfg  ExtensionsConfig
		id   string
		want bool
	}{
		{"disabled runtime", ExtensionsConfig{Enabled: false}, "any", false},
		{"open policy", ExtensionsConfig{Enabled: true}, "any", true},
		{"denylist hit", ExtensionsConfig{Enabled: true, Deny: []string{"bad"}}, "bad", false},
		{"denylist miss", ExtensionsConfig{Enabled: true, Deny: []string{"bad"}}, "good", true},
		{"allowlist hit", ExtensionsConfig{Enabled: true, Allow: []string{"good"}}, "good", true},
		{"allowlist miss", ExtensionsConfig{Enabled: true, Allow: []string{"good"}}, "other", false},
		{"entry disabled", ExtensionsConfig{Enabled: true, Entries: map[string]EntryConfig{"x": {Enabled: &off}}}, "x", false},
	}

	for _, tc := range cases {
		got, reason := tc.cfg.Allowed(tc.id)
		if got != tc.want {
			t.Errorf("%s: Allowed(%q) = %v (%s), want %v", tc.name, tc.id, got, reason, tc.want)
		}
	}
}

func TestDenyBeatsAllow(t *testing.T) {
	cfg := ExtensionsConfig{Enabled: true, Allow: []string{"x"}, Deny: []string{"x"}}
	if ok, reason := cfg.Allowed("x"); ok {
		t.Fatalf("deny should win over allow (%s)", reason)
	}
}
