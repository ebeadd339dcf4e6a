// Package registry is the catalog of loaded extensions. It owns entry
// ordering, visibility scoping, and the registration priorities the
// tool override table is built from.
package registry

import (
	"log/slog"
	"sync"

	"github.com/haasonsaas/loom/pkg/extension"
)

// Scope is the visibility class of an extension: global (visible to
// every task) or bound to one project base directory.
type Scope struct {
	// ProjectDir is empty for global scope. A project-bound entry is
	// visible only to tasks whose project directory is exactly equal.
	ProjectDir string
}

// Global reports whether the scope is visible to all projects.
func (s Scope) Global() bool { return s.ProjectDir == "" }

// Entry records one registered extension. Entries are never mutated in
// place; re-registering a module path swaps the old entry for a new one
// atomically.
type Entry struct {
	Extension  extension.Extension
	Metadata   extension.Metadata
	ModulePath string
	Scope      Scope

	// Priority is assigned at registration time, monotonically
	// increasing. Tool name collisions resolve in favor of the entry
	// with the highest priority, making shadowing an explicit product
	// of registration order rather than map iteration.
	Priority int
}

// Registry maps module paths to entries while preserving registration
// order for deterministic dispatch and aggregation.
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry
	byPath  map[string]int // module path -> index into entries
	nextPri int
	logger  *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byPath: make(map[string]int),
		logger: logger.With("component", "registry"),
	}
}

// Register stores or replaces the entry for modulePath. A replaced
// entry keeps its position in registration order but receives a fresh
// priority, so a hot-reloaded extension still wins name collisions
// against everything registered before the reload.
func (r *Registry) Register(ext extension.Extension, md extension.Metadata, modulePath string, projectDir string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextPri++
	entry := &Entry{
		Extension:  ext,
		Metadata:   md,
		ModulePath: modulePath,
		Scope:      Scope{ProjectDir: projectDir},
		Priority:   r.nextPri,
	}

	if idx, ok := r.byPath[modulePath]; ok {
		r.entries[idx] = entry
		r.logger.Debug("replaced extension", "module", modulePath, "name", md.Name, "priority", entry.Priority)
		return
	}

	r.byPath[modulePath] = len(r.entries)
	r.entries = append(r.entries, entry)
	r.logger.Debug("registered extension", "module", modulePath, "name", md.Name, "priority", entry.Priority, "project_dir", projectDir)
}

// Unregister removes the entry for modulePath. Removing an unknown
// path is a no-op.
func (r *Registry) Unregister(modulePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byPath[modulePath]
	if !ok {
		return
	}

	delete(r.byPath, modulePath)
	r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
	for path, i := range r.byPath {
		if i > idx {
			r.byPath[path] = i - 1
		}
	}
	r.logger.Debug("unregistered extension", "module", modulePath)
}

// ListFor returns all global entries plus the project-bound entries
// whose directory equals projectDir, in registration order.
func (r *Registry) ListFor(projectDir string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Scope.Global() || e.Scope.ProjectDir == projectDir {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the entry for modulePath.
func (r *Registry) Get(modulePath string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byPath[modulePath]
	if !ok {
		return nil, false
	}
	return r.entries[idx], true
}

// All returns every entry in registration order.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered extensions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
