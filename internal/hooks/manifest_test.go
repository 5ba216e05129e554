package hooks

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverPathPrefersJSON(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"hooks.yaml", "hooks.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := DiscoverPath(dir); filepath.Base(got) != "hooks.json" {
		t.Fatalf("DiscoverPath = %q, want hooks.json", got)
	}
}

func TestDiscoverPathMissingReturnsEmpty(t *testing.T) {
	if got := DiscoverPath(t.TempDir()); got != "" {
		t.Fatalf("DiscoverPath = %q, want empty", got)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.json")
	content := `{"pre_message":[{"command":["echo","hi"],"continue_on_error":true}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.PreMessage) != 1 || m.PreMessage[0].Command[0] != "echo" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if !m.PreMessage[0].ContinueOnError {
		t.Fatal("expected continue_on_error true")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.yaml")
	content := "pre_tool:\n  - command: [\"echo\", \"hi\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.PreTool) != 1 {
		t.Fatalf("expected one pre_tool hook, got %+v", m.PreTool)
	}
}

func TestLoadRejectsEmptyCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hooks.json")
	if err := os.WriteFile(path, []byte(`{"post_tool":[{"command":[]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestManifestAtUnknownPointReturnsNil(t *testing.T) {
	m := &Manifest{PreMessage: []Def{{Command: []string{"echo"}}}}
	if got := m.At(Point("unknown")); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
