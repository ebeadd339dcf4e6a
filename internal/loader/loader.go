// Package loader resolves extension modules on disk and instantiates
// them. Extensions are in-process: a manifest names a factory that was
// compiled into the host, and the loader pairs the manifest with the
// factory's live instance.
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/haasonsaas/loom/pkg/extension"
)

// Factory constructs an extension instance from its manifest and
// configuration. The manifest carries declaration-time facts the
// instance may need, like its project scope.
type Factory func(manifest *extension.Manifest, config map[string]any) (extension.Extension, error)

// Loader resolves manifests to live extension instances.
type Loader struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *slog.Logger
}

// New creates a loader.
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		factories: make(map[string]Factory),
		logger:    logger.With("component", "loader"),
	}
}

// RegisterFactory makes a compiled-in extension constructor available
// under the manifest id it serves.
func (l *Loader) RegisterFactory(id string, factory Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[id] = factory
}

// Resolve reads and validates the manifest of the extension module at
// dir, returning it together with the module's canonical path.
func (l *Loader) Resolve(dir string) (*extension.Manifest, string, error) {
	manifest, err := extension.DecodeManifestFile(filepath.Join(dir, extension.ManifestFilename))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", extension.ErrLoad, dir, err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", extension.ErrLoad, dir, err)
	}

	modulePath, err := filepath.Abs(dir)
	if err != nil {
		modulePath = dir
	}
	return manifest, modulePath, nil
}

// Instantiate validates config against the manifest schema and builds
// the extension instance through its registered factory.
func (l *Loader) Instantiate(manifest *extension.Manifest, config map[string]any) (extension.Extension, error) {
	if err := manifest.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", extension.ErrLoad, manifest.ID, err)
	}

	l.mu.RLock()
	factory, ok := l.factories[manifest.ID]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no factory registered for %q", extension.ErrLoad, manifest.ID)
	}

	ext, err := instantiate(factory, manifest, config)
	if err != nil {
		return nil, fmt.Errorf("%w: instantiate %q: %v", extension.ErrLoad, manifest.ID, err)
	}
	l.logger.Debug("instantiated extension",
		"id", manifest.ID,
		"project_dir", manifest.ProjectDir)
	return ext, nil
}

// instantiate isolates factory panics so a broken constructor reports
// as a load failure instead of crashing the host.
func instantiate(factory Factory, manifest *extension.Manifest, config map[string]any) (ext extension.Extension, err error) {
	defer func() {
		if p := recover(); p != nil {
			ext = nil
			err = fmt.Errorf("factory panic: %v", p)
		}
	}()
	return factory(manifest, config)
}

// Discover lists directories under root that carry an extension
// manifest, sorted for deterministic load order.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("discover extensions in %s: %w", root, err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, extension.ManifestFilename)); err == nil {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
