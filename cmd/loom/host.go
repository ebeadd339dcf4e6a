package main

import (
	"context"
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/loom/internal/config"
	"github.com/haasonsaas/loom/internal/extensions/indexer"
	"github.com/haasonsaas/loom/internal/loader"
	"github.com/haasonsaas/loom/internal/manager"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/registry"
	"github.com/haasonsaas/loom/internal/state"
	"github.com/haasonsaas/loom/internal/watcher"
	"github.com/haasonsaas/loom/internal/worker"
)

// Host bundles the assembled runtime for the CLI commands.
type Host struct {
	Config  *config.Config
	Manager *manager.Manager

	store   *state.Store
	watcher *watcher.Watcher
}

// buildHost assembles the extension runtime from a config file. A
// missing config file falls back to defaults so inspection commands
// work out of the box.
func buildHost(configPath string) (*Host, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
	} else if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	var store *state.Store
	if cfg.State.Path != "" {
		store, err = state.Open(cfg.State.Path)
		if err != nil {
			return nil, err
		}
	}

	ldr := loader.New(logger)
	indexer.Register(ldr, worker.ExecRunner{}, logger, metrics)

	reg := registry.New(logger)
	mgr := manager.New(reg, ldr, cfg.Extensions, logger,
		manager.WithStateStore(store),
		manager.WithMetrics(metrics))

	h := &Host{Config: cfg, Manager: mgr, store: store}
	if cfg.Extensions.Watch {
		h.watcher = watcher.New(func(dir string) {
			if err := mgr.Reload(context.Background(), dir); err != nil {
				logger.Warn("hot reload failed", "dir", dir, "error", err)
			}
		}, logger)
	}
	return h, nil
}

// Start loads all configured extensions and begins watching for
// hot-reload when enabled.
func (h *Host) Start(ctx context.Context) error {
	h.Manager.LoadAll(ctx)

	if h.watcher != nil {
		var dirs []string
		for _, root := range h.Config.Extensions.Paths {
			found, err := loader.Discover(root)
			if err != nil {
				continue
			}
			dirs = append(dirs, found...)
		}
		return h.watcher.Start(ctx, dirs)
	}
	return nil
}

// Close releases the host's resources.
func (h *Host) Close() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
	if h.store != nil {
		_ = h.store.Close()
	}
}
