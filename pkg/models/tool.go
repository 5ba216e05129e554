package models

import "encoding/json"

// ToolOrigin identifies where a ToolDefinition came from.
type ToolOrigin string

const (
	OriginBuiltin ToolOrigin = "builtin"
	OriginMCP     ToolOrigin = "mcp"
)

// ToolDefinition describes a callable tool as exposed to a provider. Tool
// names are globally unique; MCP tools are namespaced mcp_<server>_<tool>.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Origin      ToolOrigin
	ServerName  string // set when Origin == OriginMCP
}

// ToolCall is a request, produced by dispatch from a ToolUseBlock, to run a
// named tool with the given arguments.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the outcome of running a ToolCall.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Artifact is a non-text side-output produced by a tool (e.g. a rendered
// image), reported alongside a ToolResult.
type Artifact struct {
	ID       string
	Type     string
	MimeType string
	Filename string
	Data     []byte
	URL      string
}

// ToBlock converts a ToolResult into its wire representation.
func (r ToolResult) ToBlock() ToolResultBlock {
	return ToolResultBlock{ToolUseID: r.ToolCallID, Content: r.Content, IsError: r.IsError}
}
