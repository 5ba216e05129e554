package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/nexus/internal/tools/exec"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/pkg/models"
)

// builtinTool is the common shape every files/exec tool implements.
type builtinTool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error)
}

// RegisterBuiltins wires every built-in file and shell tool into registry,
// scoped to workspace. It is the concrete answer to "unknown tool: X" for
// every tool name in the spec's built-in table except create_todo/
// complete_todo/list_todos, which the engine special-cases directly (they
// operate on conversation state, not the filesystem).
func RegisterBuiltins(registry *ToolRegistry, workspace string, maxReadBytes int) {
	fileCfg := files.Config{Workspace: workspace, MaxReadBytes: maxReadBytes}
	execManager := exec.NewManager(workspace)

	tools := []builtinTool{
		files.NewReadTool(fileCfg),
		files.NewWriteTool(fileCfg),
		files.NewEditTool(fileCfg),
		files.NewApplyPatchTool(fileCfg),
		files.NewListDirectoryTool(fileCfg),
		files.NewGlobTool(fileCfg),
		files.NewSearchTool(fileCfg),
		files.NewCreateDirectoryTool(fileCfg),
		files.NewDeleteFileTool(fileCfg),
		exec.NewExecTool("bash", execManager),
		exec.NewProcessTool(execManager),
	}

	for _, t := range tools {
		registerBuiltin(registry, t)
	}
}

func registerBuiltin(registry *ToolRegistry, t builtinTool) {
	def := models.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Schema(),
		Origin:      models.OriginBuiltin,
	}
	registry.Register(def, func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		return t.Execute(ctx, input)
	})
}
