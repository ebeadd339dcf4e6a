package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/loom/pkg/extension"
)

type stubExt struct {
	config map[string]any
}

func (s *stubExt) Tools(ctx context.Context, req extension.ToolRequest) ([]extension.Tool, error) {
	return nil, nil
}

func writeManifest(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, extension.ManifestFilename), []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestResolveAndInstantiate(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"id": "stub",
		"name": "Stub",
		"version": "0.1.0",
		"projectDir": "/workspace/app"
	}`)

	l := New(nil)
	var gotManifest *extension.Manifest
	l.RegisterFactory("stub", func(m *extension.Manifest, cfg map[string]any) (extension.Extension, error) {
		gotManifest = m
		return &stubExt{config: cfg}, nil
	})

	manifest, modulePath, err := l.Resolve(dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if manifest.ToMetadata().Name != "Stub" || manifest.ProjectDir != "/workspace/app" {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
	if !filepath.IsAbs(modulePath) {
		t.Fatalf("module path should be absolute: %q", modulePath)
	}

	instance, err := l.Instantiate(manifest, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	ext, ok := instance.(*stubExt)
	if !ok || ext.config["k"] != "v" {
		t.Fatalf("config not passed through: %+v", instance)
	}
	if gotManifest == nil || gotManifest.ProjectDir != "/workspace/app" {
		t.Fatalf("manifest not passed to factory: %+v", gotManifest)
	}
}

func TestResolveMissingManifest(t *testing.T) {
	l := New(nil)
	if _, _, err := l.Resolve(t.TempDir()); !errors.Is(err, extension.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
}

func TestResolveInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name": "no id"}`)

	l := New(nil)
	if _, _, err := l.Resolve(dir); !errors.Is(err, extension.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
}

func TestInstantiateUnknownFactory(t *testing.T) {
	l := New(nil)
	manifest := &extension.Manifest{ID: "nobody-registered-me"}
	if _, err := l.Instantiate(manifest, nil); !errors.Is(err, extension.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
}

func TestInstantiateRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
		"id": "stub",
		"configSchema": {
			"type": "object",
			"required": ["token"],
			"properties": {"token": {"type": "string"}}
		}
	}`)

	l := New(nil)
	l.RegisterFactory("stub", func(_ *extension.Manifest, cfg map[string]any) (extension.Extension, error) {
		return &stubExt{}, nil
	})

	manifest, _, err := l.Resolve(dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := l.Instantiate(manifest, map[string]any{}); !errors.Is(err, extension.ErrLoad) {
		t.Fatalf("expected ErrLoad for invalid config, got %v", err)
	}
}

func TestInstantiateFactoryPanicIsIsolated(t *testing.T) {
	l := New(nil)
	l.RegisterFactory("bomb", func(_ *extension.Manifest, cfg map[string]any) (extension.Extension, error) {
		panic("constructor exploded")
	})

	_, err := l.Instantiate(&extension.Manifest{ID: "bomb"}, nil)
	if !errors.Is(err, extension.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
}

func TestInstantiateFactoryError(t *testing.T) {
	l := New(nil)
	l.RegisterFactory("failing", func(_ *extension.Manifest, cfg map[string]any) (extension.Extension, error) {
		return nil, fmt.Errorf("no dice")
	})

	if _, err := l.Instantiate(&extension.Manifest{ID: "failing"}, nil); !errors.Is(err, extension.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "beta"), `{"id": "beta"}`)
	writeManifest(t, filepath.Join(root, "alpha"), `{"id": "alpha"}`)
	if err := os.MkdirAll(filepath.Join(root, "not-an-extension"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	dirs, err := Discover(root)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 modules, got %v", dirs)
	}
	// Sorted for deterministic load order.
	if filepath.Base(dirs[0]) != "alpha" || filepath.Base(dirs[1]) != "beta" {
		t.Fatalf("unexpected order: %v", dirs)
	}
}
