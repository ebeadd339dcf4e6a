// Package watcher triggers hot reload when extension directories
// change on disk. It is a thin collaborator: it only debounces file
// events and invokes a callback with the affected directory.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher observes extension directories and reports changes.
type Watcher struct {
	mu       sync.Mutex
	fs       *fsnotify.Watcher
	roots    []string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce time.Duration
	onChange func(dir string)
	logger   *slog.Logger
}

// New creates a watcher that calls onChange with the watched root
// containing each (debounced) change.
func New(onChange func(dir string), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		debounce: defaultDebounce,
		onChange: onChange,
		logger:   logger.With("component", "watcher"),
	}
}

// SetDebounce overrides the debounce window; useful in tests.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d > 0 {
		w.debounce = d
	}
}

// Start begins watching the given directories. Calling Start twice is
// a no-op.
func (w *Watcher) Start(ctx context.Context, dirs []string) error {
	w.mu.Lock()
	if w.fs != nil {
		w.mu.Unlock()
		return nil
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fs = fs
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	debounce := w.debounce
	w.mu.Unlock()

	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		if err := fs.Add(abs); err != nil {
			w.logger.Warn("watch failed", "dir", abs, "error", err)
			continue
		}
		w.mu.Lock()
		w.roots = append(w.roots, abs)
		w.mu.Unlock()
	}

	w.wg.Add(1)
	go w.loop(watchCtx, fs, debounce)
	return nil
}

// Close stops the watcher and waits for its loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fs := w.fs
	w.fs = nil
	w.mu.Unlock()

	if fs != nil {
		_ = fs.Close()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop(ctx context.Context, fs *fsnotify.Watcher, debounce time.Duration) {
	defer w.wg.Done()

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)

	schedule := func(root string) {
		mu.Lock()
		defer mu.Unlock()
		if t := pending[root]; t != nil {
			t.Stop()
		}
		pending[root] = time.AfterFunc(debounce, func() {
			mu.Lock()
			delete(pending, root)
			mu.Unlock()
			w.onChange(root)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if root := w.rootFor(event.Name); root != "" {
				schedule(root)
			}
		case err, ok := <-fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) rootFor(name string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.roots {
		if name == root || strings.HasPrefix(name, root+string(filepath.Separator)) {
			return root
		}
	}
	return ""
}
