package workspace

import (
	"os"
	"path/filepath"

	"github.com/haasonsaas/nexus/internal/config"
)

// WorkspaceContext holds the workspace-root content the engine folds into
// the system prompt.
type WorkspaceContext struct {
	AgentsContent string
}

// LoaderConfig configures the workspace loader.
type LoaderConfig struct {
	Root       string
	AgentsFile string
}

// LoaderConfigFromConfig creates a LoaderConfig from the app config.
func LoaderConfigFromConfig(cfg *config.Config) LoaderConfig {
	lc := LoaderConfig{AgentsFile: "AGENTS.md"}
	if cfg == nil {
		return lc
	}
	if cfg.Workspace.Path != "" {
		lc.Root = cfg.Workspace.Path
	}
	if cfg.Workspace.AgentsFile != "" {
		lc.AgentsFile = cfg.Workspace.AgentsFile
	}
	return lc
}

// LoadWorkspace loads the workspace's AGENTS.md and returns a WorkspaceContext.
func LoadWorkspace(cfg LoaderConfig) (*WorkspaceContext, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}

	agentsFile := cfg.AgentsFile
	if agentsFile == "" {
		agentsFile = "AGENTS.md"
	}

	content, err := readOptionalFile(filepath.Join(root, agentsFile))
	if err != nil {
		return nil, err
	}

	return &WorkspaceContext{AgentsContent: content}, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readOptionalFile(path string) (string, error) {
	content, err := readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return content, nil
}

// SystemPromptContext returns the AGENTS.md content verbatim, the only
// workspace file the engine folds into the system prompt.
func (w *WorkspaceContext) SystemPromptContext() string {
	return w.AgentsContent
}
