package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

const (
	defaultSearchMaxMatches = 200
	defaultSearchTimeout    = 20 * time.Second
)

// SearchTool implements a time-bounded, cancellable regex search across
// workspace files.
type SearchTool struct {
	root       string
	maxMatches int
	timeout    time.Duration
}

// NewSearchTool creates a search_in_files tool scoped to the workspace.
func NewSearchTool(cfg Config) *SearchTool {
	root := cfg.Workspace
	if root == "" {
		root = "."
	}
	return &SearchTool{root: root, maxMatches: defaultSearchMaxMatches, timeout: defaultSearchTimeout}
}

func (t *SearchTool) Name() string { return "search_in_files" }

func (t *SearchTool) Description() string {
	return "Search workspace files for a regular expression, returning matching lines."
}

func (t *SearchTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression (RE2 syntax) to search for.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search under, relative to workspace (default '.').",
			},
			"max_matches": map[string]interface{}{
				"type":        "integer",
				"description": "Cap on returned matches.",
				"minimum":     1,
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

type searchMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Execute walks the workspace (or a scoped subdirectory) applying the
// pattern line-by-line, bailing out cooperatively on context cancellation
// or once the timeout elapses.
func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Pattern    string `json:"pattern"`
		Path       string `json:"path"`
		MaxMatches int    `json:"max_matches"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("pattern is required"), nil
	}

	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return toolError(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	resolver := Resolver{Root: t.root}
	scopePath := input.Path
	if scopePath == "" {
		scopePath = "."
	}
	scope, err := resolver.Resolve(scopePath)
	if err != nil {
		return toolError(err.Error()), nil
	}

	maxMatches := t.maxMatches
	if input.MaxMatches > 0 && input.MaxMatches < maxMatches {
		maxMatches = input.MaxMatches
	}

	searchCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	rootAbs, err := filepath.Abs(t.root)
	if err != nil {
		return toolError(err.Error()), nil
	}

	var matches []searchMatch
	timedOut := false
	walkErr := filepath.WalkDir(scope, func(path string, d os.DirEntry, err error) error {
		if searchCtx.Err() != nil {
			timedOut = true
			return filepath.SkipAll
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if len(matches) >= maxMatches {
			return filepath.SkipAll
		}

		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()

		rel, relErr := filepath.Rel(rootAbs, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if searchCtx.Err() != nil {
				timedOut = true
				return filepath.SkipAll
			}
			line := scanner.Text()
			if re.MatchString(line) {
				matches = append(matches, searchMatch{Path: rel, Line: lineNo, Text: line})
				if len(matches) >= maxMatches {
					return nil
				}
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		return toolError(fmt.Sprintf("search: %v", walkErr)), nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Path != matches[j].Path {
			return matches[i].Path < matches[j].Path
		}
		return matches[i].Line < matches[j].Line
	})

	result := map[string]interface{}{
		"pattern":     input.Pattern,
		"matches":     matches,
		"truncated":   len(matches) >= maxMatches,
		"timed_out":   timedOut,
		"match_count": len(matches),
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &models.ToolResult{Content: string(payload)}, nil
}
