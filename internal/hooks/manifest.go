// Package hooks implements the subprocess hook contract: user-registered
// commands invoked at pre_message, post_message, pre_tool, and post_tool,
// each receiving a JSON payload on stdin and optionally returning a JSON
// directive on stdout.
package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Point identifies one of the four invocation points in the turn loop.
type Point string

const (
	PreMessage  Point = "pre_message"
	PostMessage Point = "post_message"
	PreTool     Point = "pre_tool"
	PostTool    Point = "post_tool"
)

// Def describes a single registered hook command.
type Def struct {
	Command         []string      `json:"command" yaml:"command" toml:"command"`
	ContinueOnError bool          `json:"continue_on_error" yaml:"continue_on_error" toml:"continue_on_error"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
}

// Manifest is the parsed contents of a hooks.{json,yaml,toml} file.
type Manifest struct {
	PreMessage  []Def `json:"pre_message" yaml:"pre_message" toml:"pre_message"`
	PostMessage []Def `json:"post_message" yaml:"post_message" toml:"post_message"`
	PreTool     []Def `json:"pre_tool" yaml:"pre_tool" toml:"pre_tool"`
	PostTool    []Def `json:"post_tool" yaml:"post_tool" toml:"post_tool"`
}

// At returns the hook definitions registered for a given point.
func (m *Manifest) At(p Point) []Def {
	if m == nil {
		return nil
	}
	switch p {
	case PreMessage:
		return m.PreMessage
	case PostMessage:
		return m.PostMessage
	case PreTool:
		return m.PreTool
	case PostTool:
		return m.PostTool
	default:
		return nil
	}
}

// DiscoverPath returns the first hooks manifest found in dir, checking
// hooks.json, hooks.yaml, and hooks.toml in that order. Returns "" if none
// exist.
func DiscoverPath(dir string) string {
	for _, name := range []string{"hooks.json", "hooks.yaml", "hooks.yml", "hooks.toml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load parses a hooks manifest file, dispatching on its extension.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hooks manifest: %w", err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse hooks manifest as json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse hooks manifest as yaml: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse hooks manifest as toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unrecognized hooks manifest extension: %s", path)
	}

	for _, defs := range [][]Def{m.PreMessage, m.PostMessage, m.PreTool, m.PostTool} {
		for _, d := range defs {
			if len(d.Command) == 0 {
				return nil, fmt.Errorf("hook definition has empty command")
			}
		}
	}

	return &m, nil
}
