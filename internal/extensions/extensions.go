// Package extensions builds a unified inventory of extensions for
// inspection commands: what is loaded, what is configured but skipped,
// and why.
package extensions

import (
	"sort"

	"github.com/haasonsaas/loom/internal/config"
	"github.com/haasonsaas/loom/internal/registry"
)

// Status classifies an inventory row.
type Status string

const (
	StatusLoaded   Status = "loaded"
	StatusSkipped  Status = "skipped"
	StatusDisabled Status = "disabled"
)

// Row describes one extension in the inventory.
type Row struct {
	ID      string
	Name    string
	Version string
	Scope   string
	Status  Status

	// Reason explains a non-loaded status.
	Reason string
}

// List merges the registry's live entries with the configured entries
// that never made it into the registry. Rows are sorted by id for
// stable output.
func List(reg *registry.Registry, cfg config.ExtensionsConfig, manifestIDs map[string]string) []Row {
	var out []Row
	seen := map[string]struct{}{}

	if reg != nil {
		for _, entry := range reg.All() {
			id := entry.Metadata.Name
			if manifestID, ok := manifestIDs[entry.ModulePath]; ok {
				id = manifestID
			}
			seen[id] = struct{}{}

			scope := "global"
			if !entry.Scope.Global() {
				scope = entry.Scope.ProjectDir
			}
			out = append(out, Row{
				ID:      id,
				Name:    entry.Metadata.Name,
				Version: entry.Metadata.Version,
				Scope:   scope,
				Status:  StatusLoaded,
			})
		}
	}

	for id := range cfg.Entries {
		if _, ok := seen[id]; ok {
			continue
		}
		status := StatusSkipped
		_, reason := cfg.Allowed(id)
		if reason == "disabled in config" {
			status = StatusDisabled
		}
		if reason == "" {
			reason = "not found under configured paths"
		}
		out = append(out, Row{ID: id, Name: id, Status: status, Reason: reason})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Status == out[j].Status {
			return out[i].ID < out[j].ID
		}
		return out[i].Status < out[j].Status
	})
	return out
}
