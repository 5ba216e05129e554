package mcp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads an MCP server-list config file, validating every server
// entry before returning so a malformed transport/command never reaches
// Manager.Start.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp config: %w", err)
	}

	cfg := &Config{Enabled: true}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse mcp config: %w", err)
	}

	for _, server := range cfg.Servers {
		if err := server.Validate(); err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", server.ID, err)
		}
	}

	return cfg, nil
}
