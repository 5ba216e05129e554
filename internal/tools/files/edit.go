package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/nexus/pkg/models"
)

// EditTool replaces a single literal substring in a file. It succeeds iff
// old_text occurs exactly once; otherwise the file is left unchanged.
type EditTool struct {
	resolver Resolver
}

// NewEditTool creates an edit tool scoped to the workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *EditTool) Name() string {
	return "edit_file"
}

// Description returns the tool description.
func (t *EditTool) Description() string {
	return "Replace a literal substring in a file. Fails if old_text is not found or occurs more than once."
}

// Schema returns the JSON schema for the tool parameters.
func (t *EditTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to edit (relative to workspace).",
			},
			"old_text": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to replace; must occur exactly once in the file.",
			},
			"new_text": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text.",
			},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute applies the edit. The file is left unchanged unless old_text
// occurs exactly once.
func (t *EditTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	_ = ctx
	var input struct {
		Path    string `json:"path"`
		OldText string `json:"old_text"`
		NewText string `json:"new_text"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}
	if input.OldText == "" {
		return toolError("old_text is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	count := strings.Count(content, input.OldText)
	switch count {
	case 0:
		return toolError("old_text not found"), nil
	case 1:
		// proceed
	default:
		return toolError(fmt.Sprintf("old_text is ambiguous: occurs %d times", count)), nil
	}

	updated := strings.Replace(content, input.OldText, input.NewText, 1)
	if err := atomicWriteFile(resolved, []byte(updated)); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	result := map[string]interface{}{
		"path":         input.Path,
		"replacements": 1,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &models.ToolResult{Content: string(payload)}, nil
}
