package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ListDirectoryTool lists the entries of a workspace directory.
type ListDirectoryTool struct {
	resolver Resolver
}

// NewListDirectoryTool creates a list_directory tool scoped to the workspace.
func NewListDirectoryTool(cfg Config) *ListDirectoryTool {
	return &ListDirectoryTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return "List the entries of a directory in the workspace, with type flags."
}

func (t *ListDirectoryTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list (relative to workspace; default '.').",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ListDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
		}
	}
	if input.Path == "" {
		input.Path = "."
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read directory: %v", err)), nil
	}

	type entry struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
		Size  int64  `json:"size,omitempty"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		size := int64(0)
		if err == nil {
			size = info.Size()
		}
		out = append(out, entry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	payload, err := json.MarshalIndent(map[string]interface{}{"path": input.Path, "entries": out}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &models.ToolResult{Content: string(payload)}, nil
}

// GlobTool matches a glob pattern (globstar supported) against workspace
// paths.
type GlobTool struct {
	resolver Resolver
	root     string
}

// NewGlobTool creates a glob tool scoped to the workspace.
func NewGlobTool(cfg Config) *GlobTool {
	root := cfg.Workspace
	if root == "" {
		root = "."
	}
	return &GlobTool{resolver: Resolver{Root: root}, root: root}
}

func (t *GlobTool) Name() string { return "glob" }

func (t *GlobTool) Description() string {
	return "Match a glob pattern against workspace paths. Supports ** for recursive matches."
}

func (t *GlobTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern relative to the workspace, e.g. '**/*.go'.",
			},
		},
		"required": []string{"pattern"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("pattern is required"), nil
	}

	rootAbs, err := filepath.Abs(t.root)
	if err != nil {
		return toolError(err.Error()), nil
	}

	var matches []string
	err = filepath.WalkDir(rootAbs, func(path string, d os.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(rootAbs, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if globMatch(input.Pattern, rel) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return toolError(fmt.Sprintf("glob: %v", err)), nil
	}
	sort.Strings(matches)

	payload, err := json.MarshalIndent(map[string]interface{}{"pattern": input.Pattern, "matches": matches}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &models.ToolResult{Content: string(payload)}, nil
}

// globMatch supports "**" as a path-segment wildcard on top of
// filepath.Match's single-segment globbing.
func globMatch(pattern, name string) bool {
	if !strings.Contains(pattern, "**") {
		ok, _ := filepath.Match(pattern, name)
		return ok
	}
	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")
	if prefix != "" && !strings.HasPrefix(name, prefix) {
		return false
	}
	rest := strings.TrimPrefix(name, prefix)
	rest = strings.TrimPrefix(rest, "/")
	if suffix == "" {
		return true
	}
	ok, _ := filepath.Match(suffix, filepath.Base(rest))
	if ok {
		return true
	}
	return strings.HasSuffix(rest, "/"+suffix) || rest == suffix
}

// CreateDirectoryTool creates a directory (and its parents) in the
// workspace.
type CreateDirectoryTool struct {
	resolver Resolver
}

// NewCreateDirectoryTool creates a create_directory tool scoped to the
// workspace.
func NewCreateDirectoryTool(cfg Config) *CreateDirectoryTool {
	return &CreateDirectoryTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *CreateDirectoryTool) Name() string { return "create_directory" }

func (t *CreateDirectoryTool) Description() string {
	return "Create a directory in the workspace, including parent directories."
}

func (t *CreateDirectoryTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to create (relative to workspace).",
			},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *CreateDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return toolError(fmt.Sprintf("create directory: %v", err)), nil
	}

	payload, _ := json.MarshalIndent(map[string]interface{}{"path": input.Path, "created": true}, "", "  ")
	return &models.ToolResult{Content: string(payload)}, nil
}

// DeleteFileTool removes a file from the workspace.
type DeleteFileTool struct {
	resolver Resolver
}

// NewDeleteFileTool creates a delete_file tool scoped to the workspace.
func NewDeleteFileTool(cfg Config) *DeleteFileTool {
	return &DeleteFileTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *DeleteFileTool) Name() string { return "delete_file" }

func (t *DeleteFileTool) Description() string {
	return "Delete a file in the workspace."
}

func (t *DeleteFileTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File to delete (relative to workspace).",
			},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *DeleteFileTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("stat file: %v", err)), nil
	}
	if info.IsDir() {
		return toolError("refusing to delete a directory"), nil
	}
	if err := os.Remove(resolved); err != nil {
		return toolError(fmt.Sprintf("delete file: %v", err)), nil
	}

	payload, _ := json.MarshalIndent(map[string]interface{}{"path": input.Path, "deleted": true}, "", "  ")
	return &models.ToolResult{Content: string(payload)}, nil
}
