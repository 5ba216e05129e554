package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/nexus/internal/config"
)

func TestLoaderConfigFromConfig(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		cfg := LoaderConfigFromConfig(nil)
		if cfg.AgentsFile != "AGENTS.md" {
			t.Errorf("AgentsFile = %q, want %q", cfg.AgentsFile, "AGENTS.md")
		}
	})

	t.Run("overrides from config", func(t *testing.T) {
		appCfg := &config.Config{
			Workspace: config.WorkspaceConfig{
				Path:       "/custom/path",
				AgentsFile: "custom_agents.md",
			},
		}
		cfg := LoaderConfigFromConfig(appCfg)
		if cfg.Root != "/custom/path" {
			t.Errorf("Root = %q, want %q", cfg.Root, "/custom/path")
		}
		if cfg.AgentsFile != "custom_agents.md" {
			t.Errorf("AgentsFile = %q, want %q", cfg.AgentsFile, "custom_agents.md")
		}
	})
}

func TestLoadWorkspace(t *testing.T) {
	tmpDir := t.TempDir()

	agentsContent := "# AGENTS.md\n\nBe helpful and concise."
	if err := os.WriteFile(filepath.Join(tmpDir, "AGENTS.md"), []byte(agentsContent), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, err := LoadWorkspace(LoaderConfig{Root: tmpDir})
	if err != nil {
		t.Fatalf("LoadWorkspace error: %v", err)
	}

	if ctx.AgentsContent != agentsContent {
		t.Errorf("AgentsContent = %q, want %q", ctx.AgentsContent, agentsContent)
	}
}

func TestLoadWorkspace_MissingFiles(t *testing.T) {
	tmpDir := t.TempDir()

	ctx, err := LoadWorkspace(LoaderConfig{Root: tmpDir})
	if err != nil {
		t.Fatalf("LoadWorkspace error: %v", err)
	}

	if ctx.AgentsContent != "" {
		t.Errorf("AgentsContent should be empty for missing file")
	}
}

func TestWorkspaceContext_SystemPromptContext(t *testing.T) {
	ctx := &WorkspaceContext{AgentsContent: "Be helpful."}
	if got := ctx.SystemPromptContext(); got != "Be helpful." {
		t.Errorf("SystemPromptContext() = %q, want %q", got, "Be helpful.")
	}

	empty := &WorkspaceContext{}
	if got := empty.SystemPromptContext(); got != "" {
		t.Errorf("expected empty prompt, got %q", got)
	}
}
