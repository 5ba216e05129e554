package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ToolHandler executes a single tool call and returns its result content.
// An error return is wrapped into an error tool_result by the registry's
// Execute method; handlers that want a non-fatal "tool failed" result
// should instead return (content, true, nil) via ToolHandlerResult.
type ToolHandler func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error)

// ToolRegistry holds the built-in and MCP-aggregated tool set available to
// a conversation, keyed by tool name. Each definition's Origin/ServerName
// records whether and where a tool came from an MCP server, so callers
// classify a call's origin via Lookup rather than parsing its name.
type ToolRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ToolHandler
	defs     map[string]models.ToolDefinition
	schemas  map[string]*jsonschema.Schema
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		handlers: make(map[string]ToolHandler),
		defs:     make(map[string]models.ToolDefinition),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register adds or replaces a tool's handler and definition. def.InputSchema
// is compiled eagerly (a malformed schema is a registration bug, not a
// per-call failure) and used to validate every Execute call's input before
// it reaches the handler. A tool registered with no schema skips validation.
func (r *ToolRegistry) Register(def models.ToolDefinition, handler ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	r.handlers[def.Name] = handler
	delete(r.schemas, def.Name)
	if len(def.InputSchema) == 0 {
		return
	}
	if schema, err := jsonschema.CompileString(def.Name+".schema.json", string(def.InputSchema)); err == nil {
		r.schemas[def.Name] = schema
	}
}

// Unregister removes a tool, used when an MCP server disconnects or its
// tool list changes.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.defs, name)
	delete(r.handlers, name)
	delete(r.schemas, name)
}

// UnregisterServer removes every tool whose definition names serverName as
// its owning MCP server, used when that server disconnects.
func (r *ToolRegistry) UnregisterServer(serverName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, def := range r.defs {
		if def.Origin == models.OriginMCP && def.ServerName == serverName {
			delete(r.defs, name)
			delete(r.handlers, name)
			delete(r.schemas, name)
		}
	}
}

// ClearMCP removes every MCP-origin tool, used before a full re-sync of the
// aggregated MCP tool set so a disconnected server's tools don't linger.
func (r *ToolRegistry) ClearMCP() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, def := range r.defs {
		if def.Origin == models.OriginMCP {
			delete(r.defs, name)
			delete(r.handlers, name)
			delete(r.schemas, name)
		}
	}
}

// Definitions returns the tool definitions sorted by name, suitable for
// handing to a provider's CompletionRequest.Tools.
func (r *ToolRegistry) Definitions() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns a tool's definition and whether it is registered.
func (r *ToolRegistry) Lookup(name string) (models.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Execute runs the named tool's handler. Unknown tools and handler errors
// both come back as an IsError tool_result rather than a Go error, so
// callers can fold the result directly into conversation history.
func (r *ToolRegistry) Execute(ctx context.Context, name string, input json.RawMessage) (*models.ToolResult, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return &models.ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
	if schema != nil {
		if err := validateToolInput(schema, input); err != nil {
			return &models.ToolResult{Content: fmt.Sprintf("invalid arguments for %s: %v", name, err), IsError: true}, nil
		}
	}
	result, err := handler(ctx, input)
	if err != nil {
		return &models.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return result, nil
}

// validateToolInput decodes input as generic JSON and runs it through the
// tool's compiled schema. An empty input is treated as an empty object so
// no-argument tools (e.g. list_todos) validate against a schema of `{}`.
func validateToolInput(schema *jsonschema.Schema, input json.RawMessage) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	return schema.Validate(v)
}
