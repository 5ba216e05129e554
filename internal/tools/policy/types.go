// Package policy evaluates tool calls against a PermissionPolicy and
// mediates prompts for decisions that require user adjudication.
package policy

import "strings"

// ToolAliases maps alternative names to canonical tool names.
var ToolAliases = map[string]string{
	"bash":        "bash",
	"shell":       "bash",
	"apply-patch": "edit_file",
	"apply_patch": "edit_file",
	"read":        "read_file",
	"write":       "write_file",
	"edit":        "edit_file",
	"ls":          "list_directory",
}

// NormalizeTool normalizes a tool name to its canonical form by converting
// to lowercase and resolving known aliases.
func NormalizeTool(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := ToolAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// IsMCPTool returns true if the tool name refers to an MCP tool, using the
// "mcp:server.tool" naming convention McpServerConfig-backed tools register
// under.
func IsMCPTool(toolName string) bool {
	normalized := strings.ToLower(strings.TrimSpace(toolName))
	return strings.HasPrefix(normalized, "mcp:")
}

// ParseMCPToolName extracts the server name and tool name from an MCP tool
// reference of the form "mcp:server.tool". Returns empty strings if
// toolName is not an MCP reference.
func ParseMCPToolName(toolName string) (serverName, tool string) {
	normalized := strings.ToLower(strings.TrimSpace(toolName))
	if !strings.HasPrefix(normalized, "mcp:") {
		return "", ""
	}
	trimmed := strings.TrimPrefix(normalized, "mcp:")
	parts := strings.SplitN(trimmed, ".", 2)
	if len(parts) < 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
