package mcp

import (
	"context"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// ToolSet adapts a Manager and the shared tool registry into
// agent.ToolSetSource: whenever the manager's connection set changes, the
// aggregated MCP tool list is re-synced into registry before the engine's
// cached tool list is refreshed.
type ToolSet struct {
	manager   *Manager
	registry  *agent.ToolRegistry
	registrar ToolPolicyRegistrar
}

// NewToolSet creates a ToolSet bridging manager's MCP tools into registry.
// registrar may be nil if no policy aliasing is needed.
func NewToolSet(manager *Manager, registry *agent.ToolRegistry, registrar ToolPolicyRegistrar) *ToolSet {
	return &ToolSet{manager: manager, registry: registry, registrar: registrar}
}

// ToolsVersion reports the manager's connection-set generation.
func (s *ToolSet) ToolsVersion() int64 {
	return s.manager.Version()
}

// Tools re-syncs MCP tools into the registry and returns the full
// definition set (built-in plus MCP), which is what the engine caches and
// hands to the provider.
func (s *ToolSet) Tools(ctx context.Context) []models.ToolDefinition {
	s.registry.ClearMCP()
	RegisterToolsWithRegistrar(s.registry, s.manager, s.registrar)
	return s.registry.Definitions()
}
