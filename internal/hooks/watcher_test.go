package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerLoadsExistingManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.json")
	if err := os.WriteFile(path, []byte(`{"pre_message":[{"command":["echo","hi"]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Manifest() == nil || len(m.Manifest().PreMessage) != 1 {
		t.Fatalf("expected loaded manifest, got %+v", m.Manifest())
	}
}

func TestManagerMissingManifestIsNilNotError(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Manifest() != nil {
		t.Fatalf("expected nil manifest, got %+v", m.Manifest())
	}
	if m.Runner() == nil {
		t.Fatal("Runner() should never be nil even with no manifest")
	}
}

func TestManagerWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(dir, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer m.Close()

	if err := os.WriteFile(path, []byte(`{"pre_message":[{"command":["echo","hi"]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if manifest := m.Manifest(); manifest != nil && len(manifest.PreMessage) == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("manifest was not reloaded after file change")
}
