package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsChangedRoot(t *testing.T) {
	dir := t.TempDir()

	changes := make(chan string, 8)
	w := New(func(d string) { changes <- d }, nil)
	w.SetDebounce(20 * time.Millisecond)
	t.Cleanup(func() { w.Close() })

	if err := w.Start(context.Background(), []string{dir}); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "loom.extension.json"), []byte(`{"id":"x"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-changes:
		abs, _ := filepath.Abs(dir)
		if got != abs {
			t.Fatalf("changed root = %q, want %q", got, abs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("change never reported")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()

	changes := make(chan string, 16)
	w := New(func(d string) { changes <- d }, nil)
	w.SetDebounce(100 * time.Millisecond)
	t.Cleanup(func() { w.Close() })

	if err := w.Start(context.Background(), []string{dir}); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte{byte('0' + i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("change never reported")
	}

	// The burst collapses into at most a couple of callbacks, never one
	// per write.
	time.Sleep(300 * time.Millisecond)
	if extra := len(changes); extra >= 4 {
		t.Fatalf("burst not debounced: %d extra callbacks", extra+1)
	}
}

func TestWatcherStartTwiceAndClose(t *testing.T) {
	dir := t.TempDir()
	w := New(func(string) {}, nil)

	if err := w.Start(context.Background(), []string{dir}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(context.Background(), []string{dir}); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Closing twice is safe.
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
