// Package main provides the CLI entry point for the Nexus agent core: a
// provider-backed conversation engine with tool dispatch, a permission
// mediator, and MCP client support. It wires configuration, providers,
// built-in tools, and the policy mediator into a runnable program and
// drives the engine's turn loop over stdin/stdout.
//
// # Basic usage
//
//	nexus chat --config nexus.yaml
//
// Credentials are never read from the config file; see the environment
// contract below.
//
// # Environment variables
//
//   - ANTHROPIC_AUTH_TOKEN, ANTHROPIC_BASE_URL
//   - GEMINI_API_KEY (falls back to GOOGLE_API_KEY), GEMINI_BASE_URL
//   - OPENAI_API_KEY, OPENAI_BASE_URL
//   - MISTRAL_API_KEY
//   - OLLAMA_BASE_URL
//   - AWS_REGION (or AWS_DEFAULT_REGION), AWS_ACCESS_KEY_ID,
//     AWS_SECRET_ACCESS_KEY, AWS_SESSION_TOKEN (bedrock provider)
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/providers"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/hooks"
	"github.com/haasonsaas/nexus/internal/mcp"
	"github.com/haasonsaas/nexus/internal/store"
	"github.com/haasonsaas/nexus/internal/tools/policy"
	"github.com/haasonsaas/nexus/internal/workspace"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Exit codes per the CLI contract: 0 normal, 1 unrecoverable error,
// 2 user cancellation, 3 policy violation in non-interactive mode.
const (
	exitOK           = 0
	exitError        = 1
	exitCancelled    = 2
	exitPolicyDenied = 3
)

var configPath string

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitError)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nexus",
		Short: "Conversation engine, provider abstraction, and tool dispatch core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to nexus.yaml (defaults applied when omitted)")
	root.AddCommand(buildChatCmd())
	return root
}

func buildChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation over stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}
}

// newLogger builds the structured logger every subsystem is handed,
// honoring the configured level and format (json|text).
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func runChat(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Logging)

	provider, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}

	ws, err := workspace.LoadWorkspace(workspace.LoaderConfigFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}

	registry := agent.NewToolRegistry()
	agent.RegisterBuiltins(registry, cfg.Workspace.Path, cfg.Tools.MaxReadBytes)

	mcpManager, toolSet, err := buildMCP(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("build mcp: %w", err)
	}
	if mcpManager != nil {
		if err := mcpManager.Start(ctx); err != nil {
			logger.Warn("mcp manager start failed", "error", err)
		}
		defer mcpManager.Stop()
	}

	mediator := policy.NewMediator(cfg.Workspace.Path, cfg.Policy.ToPermissionPolicy())

	hookManager, err := hooks.NewManager(hooksDir(), logger)
	if err != nil {
		logger.Warn("hooks manager init failed", "error", err)
		hookManager = nil
	}
	if hookManager != nil {
		if err := hookManager.Watch(ctx); err != nil {
			logger.Warn("hooks watch failed", "error", err)
		}
		defer hookManager.Close()
	}

	conversationStore := store.NewMemoryStore()
	conv := &models.Conversation{ID: uuid.NewString(), Model: resolveModel(cfg, provider)}
	if err := conversationStore.CreateConversation(ctx, conv); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	executor := agent.NewToolExecutor(registry, agent.DefaultToolExecConfig())
	eng := agent.NewEngine(provider, registry, executor, mediator, cfg.Workspace.Path, conv)
	eng.SetAgentsMD(ws.SystemPromptContext())
	if hookManager != nil {
		eng.Hooks = hookManager.Runner()
	}
	if toolSet != nil {
		eng.ToolSet = toolSet
	}

	return replLoop(ctx, eng, conversationStore, logger)
}

func replLoop(ctx context.Context, eng *agent.Engine, st *store.MemoryStore, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cancel := &agent.CancelFlag{}
	go func() {
		<-ctx.Done()
		cancel.Cancel()
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		output, err := eng.Send(ctx, line, nil, cancel)
		if err != nil {
			if output.Cancelled {
				return nil
			}
			logger.Error("turn failed", "error", err)
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}

		fmt.Println(output.Text)

		if err := st.AppendMessage(ctx, eng.Conversation().ID, models.Message{
			Role:   models.RoleAssistant,
			Blocks: []models.Block{models.TextBlock{Text: output.Text}},
		}); err != nil {
			logger.Warn("append to store failed", "error", err)
		}
	}
	return scanner.Err()
}

func resolveModel(cfg *config.Config, provider agent.LLMProvider) string {
	if cfg.LLM.Model != "" {
		return cfg.LLM.Model
	}
	if avail := provider.Models(); len(avail) > 0 {
		return avail[0].ID
	}
	return ""
}

func hooksDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nexus"
	}
	return home + "/.nexus"
}

// buildProvider constructs the active provider adapter from cfg.LLM.Provider,
// resolving credentials from the environment contract (never the config
// file) and config base-URL overrides.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLM.Provider)) {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       os.Getenv("ANTHROPIC_AUTH_TOKEN"),
			BaseURL:      firstNonEmpty(cfg.LLM.BaseURLOverrides["anthropic"], os.Getenv("ANTHROPIC_BASE_URL")),
			DefaultModel: cfg.LLM.Model,
		})
	case "openai":
		return providers.NewOpenAIProvider(
			os.Getenv("OPENAI_API_KEY"),
			firstNonEmpty(cfg.LLM.BaseURLOverrides["openai"], os.Getenv("OPENAI_BASE_URL")),
		), nil
	case "google", "gemini":
		// GoogleProvider talks to the Gemini API via the official SDK, which
		// has no base URL override hook; GEMINI_BASE_URL has nothing to wire
		// to here.
		apiKey := firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		return providers.NewGoogleProvider(providers.GoogleConfig{APIKey: apiKey, DefaultModel: cfg.LLM.Model})
	case "mistral":
		return providers.NewMistralProvider(os.Getenv("MISTRAL_API_KEY")), nil
	case "ollama":
		baseURL := firstNonEmpty(cfg.LLM.BaseURLOverrides["ollama"], os.Getenv("OLLAMA_BASE_URL"))
		return providers.NewOllamaProvider(providers.OllamaConfig{BaseURL: baseURL, DefaultModel: cfg.LLM.Model}), nil
	case "bedrock":
		region := firstNonEmpty(os.Getenv("AWS_REGION"), os.Getenv("AWS_DEFAULT_REGION"), "us-east-1")
		return providers.NewBedrockProvider(context.Background(), providers.BedrockConfig{
			Region:          region,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			DefaultModel:    cfg.LLM.Model,
		})
	default:
		return nil, fmt.Errorf("unrecognized provider %q", cfg.LLM.Provider)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// buildMCP starts the configured MCP servers (if any) and returns the
// aggregate ToolSet the engine refreshes its tool list from. Returns
// (nil, nil, nil) when MCP is disabled.
func buildMCP(cfg *config.Config, registry *agent.ToolRegistry, logger *slog.Logger) (*mcp.Manager, *mcp.ToolSet, error) {
	if !cfg.MCP.Enabled {
		return nil, nil, nil
	}

	mcpCfg := &mcp.Config{Enabled: true}
	if cfg.MCP.ConfigPath != "" {
		loaded, err := mcp.LoadConfig(cfg.MCP.ConfigPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load mcp config: %w", err)
		}
		mcpCfg = loaded
	}

	manager := mcp.NewManager(mcpCfg, logger)
	toolSet := mcp.NewToolSet(manager, registry, nil)
	return manager, toolSet, nil
}
