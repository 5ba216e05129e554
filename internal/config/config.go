// Package config loads the non-secret, user/project configuration pair that
// controls the runtime: active provider and model, base-URL overrides,
// generation parameters, per-subagent system-prompt overrides, and the
// permission policy (spec §6). Secrets are never read from here — API keys
// come only from the environment contract, resolved by the provider
// constructors in internal/agent/providers.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/nexus/pkg/models"
)

// Config is the full non-secret configuration for a single runtime instance.
type Config struct {
	Version int `yaml:"version"`

	LLM       LLMConfig       `yaml:"llm"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Tools     ToolsConfig     `yaml:"tools"`
	Policy    PolicyConfig    `yaml:"policy"`
	Subagents map[string]SubagentConfig `yaml:"subagents"`
	Logging   LoggingConfig   `yaml:"logging"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// LLMConfig selects the active provider/model and carries the base-URL,
// max-tokens, and temperature overrides spec §6 allows in config (never an
// API key — those come from the environment contract).
type LLMConfig struct {
	// Provider selects the active dialect: "anthropic", "openai", "google",
	// "mistral", "ollama", or "bedrock".
	Provider string `yaml:"provider"`

	// Model is the active model id for Provider. Empty uses the provider
	// adapter's own default.
	Model string `yaml:"model"`

	// BaseURLOverrides maps a provider name to a base-URL override, mirroring
	// the *_BASE_URL environment variables but settable in config too.
	BaseURLOverrides map[string]string `yaml:"base_url_overrides"`

	// MaxTokens caps the assistant's response length. Zero uses the
	// provider's own default.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature, 0-2. Zero value is a valid
	// temperature (most deterministic), so Temperature is only ever applied
	// when TemperatureSet is true.
	Temperature    float64 `yaml:"temperature"`
	TemperatureSet bool    `yaml:"-"`

	// FallbackChain names providers to try, in order, if Provider fails.
	FallbackChain []string `yaml:"fallback_chain"`
}

// UnmarshalYAML distinguishes an explicit temperature: 0 from an absent key,
// since zero is a meaningful sampling temperature.
func (c *LLMConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain LLMConfig
	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = LLMConfig(raw)
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "temperature" {
			c.TemperatureSet = true
			break
		}
	}
	return nil
}

// WorkspaceConfig locates the project root and the markdown files the
// engine folds into the system prompt.
type WorkspaceConfig struct {
	Path       string `yaml:"path"`
	AgentsFile string `yaml:"agents_file"`
	MaxChars   int    `yaml:"max_chars"`
}

// ToolsConfig configures the built-in tool implementations.
type ToolsConfig struct {
	// MaxReadBytes caps how much of a file read_file returns.
	MaxReadBytes int `yaml:"max_read_bytes"`

	// Bash configures the "bash" tool's execution behavior.
	Bash BashToolConfig `yaml:"bash"`
}

// BashToolConfig controls bash tool execution limits.
type BashToolConfig struct {
	// DefaultTimeout bounds a bash command when the caller specifies none.
	// Zero means unbounded (still cancellable), per spec §5.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// SubagentConfig overrides the system prompt for a named subagent.
type SubagentConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
}

// LoggingConfig controls the structured logger every subsystem is handed.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MCPConfig toggles and lists MCP server connections. Per-server transport
// detail lives in internal/mcp.Config; this just carries whether to start
// them and which config file to load them from, keeping internal/config
// from duplicating internal/mcp's richer server schema.
type MCPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ConfigPath string `yaml:"config_path"`
}

// PolicyConfig is the YAML-serializable form of a models.PermissionPolicy.
// Pattern lists are keyed by domain name ("bash", "file") since YAML map
// keys can't be the typed models.ToolDomain directly.
type PolicyConfig struct {
	YOLO     bool                    `yaml:"yolo"`
	PlanMode bool                    `yaml:"plan_mode"`
	Allow    map[string][]PatternConfig `yaml:"allow"`
	Deny     map[string][]PatternConfig `yaml:"deny"`
}

// PatternConfig is one allow/deny pattern entry.
type PatternConfig struct {
	Pattern string `yaml:"pattern"`
	Exact   bool   `yaml:"exact"`
}

var domainNames = map[string]models.ToolDomain{
	"bash": models.DomainBash,
	"file": models.DomainFile,
}

// ToPermissionPolicy converts the YAML-shaped policy config into the
// runtime type internal/tools/policy.Mediator consumes.
func (p PolicyConfig) ToPermissionPolicy() *models.PermissionPolicy {
	pol := models.NewPermissionPolicy()
	pol.YOLO = p.YOLO
	pol.PlanMode = p.PlanMode
	for domainName, rules := range p.Allow {
		domain, ok := domainNames[domainName]
		if !ok {
			continue
		}
		for _, r := range rules {
			pol.AddAllow(domain, r.Pattern, r.Exact)
		}
	}
	for domainName, rules := range p.Deny {
		domain, ok := domainNames[domainName]
		if !ok {
			continue
		}
		for _, r := range rules {
			pol.AddDeny(domain, r.Pattern, r.Exact)
		}
	}
	return pol
}

// Load reads and parses the configuration file at path, expanding ${VAR}
// environment references (for non-secret overrides such as base URLs),
// applying defaults, and validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a Config with every default applied but no file read,
// used when no config path is given (spec §6 requires it to still run with
// environment-only credentials).
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.Workspace.Path == "" {
		cfg.Workspace.Path = "."
	}
	if cfg.Workspace.AgentsFile == "" {
		cfg.Workspace.AgentsFile = "AGENTS.md"
	}
	if cfg.Workspace.MaxChars == 0 {
		cfg.Workspace.MaxChars = 20000
	}
	if cfg.Tools.MaxReadBytes == 0 {
		cfg.Tools.MaxReadBytes = 1 << 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.MCP.ConfigPath == "" {
		cfg.MCP.ConfigPath = "mcp.json"
	}
}

// ConfigValidationError reports every validation failure found in one pass,
// rather than stopping at the first.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if err := ValidateVersion(cfg.Version); err != nil {
		issues = append(issues, err.Error())
	}

	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case "anthropic", "openai", "google", "mistral", "ollama", "bedrock":
	default:
		issues = append(issues, fmt.Sprintf("llm.provider %q is not a recognized provider", cfg.LLM.Provider))
	}

	if cfg.LLM.MaxTokens < 0 {
		issues = append(issues, "llm.max_tokens must be >= 0")
	}
	if cfg.LLM.TemperatureSet && (cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2) {
		issues = append(issues, "llm.temperature must be between 0 and 2")
	}

	if cfg.Workspace.MaxChars < 0 {
		issues = append(issues, "workspace.max_chars must be >= 0")
	}
	if cfg.Tools.MaxReadBytes < 0 {
		issues = append(issues, "tools.max_read_bytes must be >= 0")
	}
	if cfg.Tools.Bash.DefaultTimeout < 0 {
		issues = append(issues, "tools.bash.default_timeout must be >= 0")
	}

	for domainName := range cfg.Policy.Allow {
		if _, ok := domainNames[domainName]; !ok {
			issues = append(issues, fmt.Sprintf("policy.allow has unknown domain %q (must be \"bash\" or \"file\")", domainName))
		}
	}
	for domainName := range cfg.Policy.Deny {
		if _, ok := domainNames[domainName]; !ok {
			issues = append(issues, fmt.Sprintf("policy.deny has unknown domain %q (must be \"bash\" or \"file\")", domainName))
		}
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}

	return nil
}
