// Package manager is the extension runtime's core: it loads and
// unloads extension modules through the loader and validator
// collaborators, aggregates the tools visible to a task, and dispatches
// lifecycle events across extensions with full error isolation.
//
// Every failure originating inside extension code is caught at this
// boundary and converted into a logged diagnostic plus a safe default.
// Errors in the manager's own API surface as returned errors, since
// those indicate programming mistakes rather than third-party
// misbehavior.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/haasonsaas/loom/internal/config"
	"github.com/haasonsaas/loom/internal/loader"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/registry"
	"github.com/haasonsaas/loom/internal/state"
	"github.com/haasonsaas/loom/pkg/extension"
)

// Manager coordinates the registry, loader, validator and state store.
type Manager struct {
	mu       sync.Mutex
	registry *registry.Registry
	loader   *loader.Loader
	store    *state.Store
	cfg      config.ExtensionsConfig
	logger   *slog.Logger
	metrics  *observability.Metrics
	builtins []extension.Tool

	// manifestIDs maps module path to the manifest id registered from
	// it, for state scoping and config lookup on reload.
	manifestIDs map[string]string
}

// Option configures a Manager.
type Option func(*Manager)

// WithStateStore attaches the durable extension state collaborator.
func WithStateStore(store *state.Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithMetrics attaches runtime metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithBuiltinTools registers host-built-in tools that extensions may
// intentionally shadow by name.
func WithBuiltinTools(tools ...extension.Tool) Option {
	return func(m *Manager) { m.builtins = append(m.builtins, tools...) }
}

// BuiltinExtensionName tags built-in tools in aggregation results.
const BuiltinExtensionName = "builtin"

// New creates a manager.
func New(reg *registry.Registry, ldr *loader.Loader, cfg config.ExtensionsConfig, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		registry:    reg,
		loader:      ldr,
		cfg:         cfg,
		logger:      logger.With("component", "manager"),
		manifestIDs: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry exposes the underlying catalog, mostly for inspection
// commands.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// ManifestIDs returns a copy of the module path to manifest id table.
func (m *Manager) ManifestIDs() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.manifestIDs))
	for k, v := range m.manifestIDs {
		out[k] = v
	}
	return out
}

// Load resolves, validates and registers the extension module at dir.
// A module that fails any step is simply absent from the registry.
func (m *Manager) Load(ctx context.Context, dir string) error {
	manifest, modulePath, err := m.loader.Resolve(dir)
	if err != nil {
		m.countLoad("error")
		m.logger.Warn("extension module failed to resolve", "dir", dir, "error", err)
		return err
	}

	if ok, reason := m.cfg.Allowed(manifest.ID); !ok {
		m.logger.Info("extension skipped", "id", manifest.ID, "reason", reason)
		return nil
	}

	var entryConfig map[string]any
	if entry, ok := m.cfg.Entries[manifest.ID]; ok {
		entryConfig = entry.Config
	}

	ext, err := m.loader.Instantiate(manifest, entryConfig)
	if err != nil {
		m.countLoad("error")
		m.logger.Warn("extension failed to instantiate", "id", manifest.ID, "error", err)
		return err
	}

	report, err := loader.Validate(ext)
	if err != nil {
		m.countLoad("error")
		m.logger.Warn("extension failed shape validation", "id", manifest.ID, "error", err)
		return err
	}

	if init, ok := ext.(extension.Initializer); ok {
		if err := m.callOnLoad(ctx, init, manifest.ID); err != nil {
			m.countLoad("error")
			m.logger.Warn("extension OnLoad failed", "id", manifest.ID, "error", err)
			return fmt.Errorf("%w: %s: OnLoad: %v", extension.ErrLoad, manifest.ID, err)
		}
	}

	m.mu.Lock()
	m.manifestIDs[modulePath] = manifest.ID
	m.mu.Unlock()

	m.registry.Register(ext, manifest.ToMetadata(), modulePath, manifest.ProjectDir)
	m.countLoad("loaded")
	m.logger.Info("extension loaded",
		"id", manifest.ID,
		"name", manifest.ToMetadata().Name,
		"version", manifest.Version,
		"hooks", report.Hooks,
		"tools", report.ProvidesTools)
	return nil
}

// LoadAll discovers and loads every extension module under the
// configured paths. Individual failures are logged and skipped.
func (m *Manager) LoadAll(ctx context.Context) {
	for _, root := range m.cfg.Paths {
		dirs, err := loader.Discover(root)
		if err != nil {
			m.logger.Warn("extension discovery failed", "root", root, "error", err)
			continue
		}
		for _, dir := range dirs {
			_ = m.Load(ctx, dir)
		}
	}
}

// Unload runs the extension's teardown hook and removes it from the
// registry. Unloading an unknown module path is a no-op.
func (m *Manager) Unload(ctx context.Context, modulePath string) {
	entry, ok := m.registry.Get(modulePath)
	if !ok {
		return
	}

	if closer, ok := entry.Extension.(extension.Closer); ok {
		if err := m.callOnUnload(ctx, closer); err != nil {
			m.logger.Warn("extension OnUnload failed",
				"name", entry.Metadata.Name,
				"error", err)
		}
	}

	m.registry.Unregister(modulePath)
	m.mu.Lock()
	delete(m.manifestIDs, modulePath)
	m.mu.Unlock()
	m.logger.Info("extension unloaded", "name", entry.Metadata.Name, "module", modulePath)
}

// Reload replaces the registration for the module at dir, running the
// old instance's teardown first. Used by the hot-reload watcher.
func (m *Manager) Reload(ctx context.Context, dir string) error {
	_, modulePath, err := m.loader.Resolve(dir)
	if err != nil {
		// The module may have been removed; drop any prior entry.
		abs, absErr := filepath.Abs(dir)
		if absErr != nil {
			abs = dir
		}
		if entry, ok := m.registry.Get(abs); ok {
			m.Unload(ctx, entry.ModulePath)
			return nil
		}
		return err
	}

	if entry, ok := m.registry.Get(modulePath); ok {
		if closer, ok := entry.Extension.(extension.Closer); ok {
			if err := m.callOnUnload(ctx, closer); err != nil {
				m.logger.Warn("extension OnUnload failed during reload",
					"name", entry.Metadata.Name,
					"error", err)
			}
		}
	}

	return m.Load(ctx, dir)
}

// scopedState returns the state view handed to the extension with the
// given manifest id. Without a configured store, state is a transient
// in-memory map so extensions keep working in stateless hosts.
func (m *Manager) scopedState(manifestID string) extension.StateStore {
	if m.store != nil {
		return m.store.Scoped(manifestID)
	}
	return &memoryState{values: make(map[string]json.RawMessage)}
}

type hostContext struct {
	state extension.StateStore
}

func (h hostContext) State() extension.StateStore { return h.state }

// callOnLoad isolates panics in third-party setup code.
func (m *Manager) callOnLoad(ctx context.Context, init extension.Initializer, manifestID string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return init.OnLoad(ctx, hostContext{state: m.scopedState(manifestID)})
}

func (m *Manager) callOnUnload(ctx context.Context, closer extension.Closer) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return closer.OnUnload(ctx)
}

func (m *Manager) countLoad(status string) {
	if m.metrics != nil {
		m.metrics.ExtensionLoads.WithLabelValues(status).Inc()
	}
}

// memoryState is the fallback StateStore for hosts without a durable
// store.
type memoryState struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

func (s *memoryState) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memoryState) Set(_ context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = payload
	return nil
}
