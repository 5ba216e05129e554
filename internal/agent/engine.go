package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/nexus/internal/hooks"
	"github.com/haasonsaas/nexus/internal/tools/policy"
	"github.com/haasonsaas/nexus/internal/tools/todo"
	"github.com/haasonsaas/nexus/pkg/models"
)

// MaxTurnsPerSend bounds the provider/tool-dispatch loop a single send
// drives before giving up, per the runtime's loop-termination contract.
const MaxTurnsPerSend = 30

// Cancelled is the sentinel error returned when a caller's cancel flag was
// observed at a loop checkpoint.
var Cancelled = fmt.Errorf("cancelled")

// CancelFlag is a caller-owned atomic cancellation signal, checked at every
// loop checkpoint (turn boundary, before provider calls, during stream
// decode, before each tool dispatch).
type CancelFlag struct{ flag atomic.Bool }

func (c *CancelFlag) Cancel()        { c.flag.Store(true) }
func (c *CancelFlag) Observed() bool { return c.flag.Load() }

// StreamEvent is one incremental event emitted by send_stream.
type StreamEvent struct {
	Kind             string // text | tool_call | tool_result | permission_request | final | error
	Text             string
	ToolCallID       string
	ToolName         string
	ToolInput        []byte
	ToolResult       string
	IsError          bool
	PermissionPrompt *models.Decision
	Err              error
}

// AssistantOutput is the result of driving the turn loop to quiescence.
type AssistantOutput struct {
	Text      string
	Usage     models.Usage
	Cancelled bool
}

// ToolSetSource supplies the tool definitions available to a turn, refreshed
// only when the MCP aggregate version changes (see ToolsVersion).
type ToolSetSource interface {
	ToolsVersion() int64
	Tools(ctx context.Context) []models.ToolDefinition
}

// Engine drives the multi-turn conversation loop described by the runtime:
// it streams provider output, dispatches tool_use blocks through the
// registry subject to policy, and folds results back into history.
type Engine struct {
	mu sync.Mutex // advisory per-conversation lock held for the duration of send

	Provider  LLMProvider
	Registry  *ToolRegistry
	Executor  *ToolExecutor
	Mediator  *policy.Mediator
	ToolSet   ToolSetSource
	Workspace string
	Hooks     *hooks.Runner // nil disables the hook contract entirely

	conv           *models.Conversation
	system         string
	cachedTools    []models.ToolDefinition
	cachedVersion  int64
	agentsMD       string
}

// NewEngine builds an engine bound to a single conversation. provider,
// registry, executor, and mediator are shared across conversations by the
// caller; conv is the engine's own advisory-locked state.
func NewEngine(provider LLMProvider, registry *ToolRegistry, executor *ToolExecutor, mediator *policy.Mediator, workspace string, conv *models.Conversation) *Engine {
	return &Engine{
		Provider:  provider,
		Registry:  registry,
		Executor:  executor,
		Mediator:  mediator,
		Workspace: workspace,
		conv:      conv,
	}
}

// SetSystemPrompt sets the system prompt used for subsequent turns (ignored
// in favor of conv.SystemPromptOverride when that is non-empty).
func (e *Engine) SetSystemPrompt(system string) { e.system = system }

// SetAgentsMD sets the project AGENTS.md content clear() re-seeds with.
func (e *Engine) SetAgentsMD(content string) { e.agentsMD = content }

var atMentionPattern = regexp.MustCompile(`(^|\s)@([^@\s]+)`)

// send appends a user message (after @path/!shell preprocessing) and drives
// the turn loop to quiescence.
func (e *Engine) send(ctx context.Context, message string, images []models.ImageBlock, cancel *CancelFlag, onEvent func(StreamEvent)) (AssistantOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cancel != nil && cancel.Observed() {
		return AssistantOutput{Cancelled: true}, Cancelled
	}

	if strings.HasPrefix(strings.TrimSpace(message), "!") {
		return e.runShellEscape(ctx, strings.TrimPrefix(strings.TrimSpace(message), "!"))
	}

	directive, err := e.runHook(ctx, hooks.PreMessage, hooks.MessagePayload{
		Point:          hooks.PreMessage,
		ConversationID: e.conv.ID,
		UserMessage:    message,
	})
	if err != nil {
		return AssistantOutput{}, err
	}
	if directive.Aborted() {
		return AssistantOutput{Text: directive.Message}, fmt.Errorf("pre_message hook aborted: %s", directive.Message)
	}
	if directive.UserMessage != nil {
		message = *directive.UserMessage
	}

	text, fileBlocks, err := e.preprocessMentions(message)
	if err != nil {
		return AssistantOutput{}, err
	}

	var blocks []models.Block
	if text != "" {
		blocks = append(blocks, models.TextBlock{Text: text})
	}
	for _, b := range fileBlocks {
		blocks = append(blocks, b)
	}
	for _, img := range images {
		blocks = append(blocks, img)
	}

	if len(blocks) == 0 {
		return AssistantOutput{}, nil
	}

	e.conv.Messages = append(e.conv.Messages, models.Message{Role: models.RoleUser, Blocks: blocks, CreatedAt: time.Now()})
	e.conv.UpdatedAt = time.Now()

	output, err := e.loop(ctx, cancel, onEvent)
	if err != nil || output.Cancelled {
		return output, err
	}

	post, hookErr := e.runHook(ctx, hooks.PostMessage, hooks.MessagePayload{
		Point:          hooks.PostMessage,
		ConversationID: e.conv.ID,
		UserMessage:    output.Text,
	})
	if hookErr != nil {
		return output, hookErr
	}
	if post.Aborted() {
		return output, fmt.Errorf("post_message hook aborted: %s", post.Message)
	}

	return output, nil
}

// runHook executes the hooks registered at point, treating a nil Hooks
// runner as a permanently-empty manifest.
func (e *Engine) runHook(ctx context.Context, point hooks.Point, payload any) (hooks.Directive, error) {
	if e.Hooks == nil {
		return hooks.Directive{}, nil
	}
	return e.Hooks.Run(ctx, point, payload)
}

// Send is send without incremental events.
func (e *Engine) Send(ctx context.Context, message string, images []models.ImageBlock, cancel *CancelFlag) (AssistantOutput, error) {
	return e.send(ctx, message, images, cancel, nil)
}

// SendStream is send with incremental events delivered to onEvent.
func (e *Engine) SendStream(ctx context.Context, message string, images []models.ImageBlock, cancel *CancelFlag, onEvent func(StreamEvent)) (AssistantOutput, error) {
	return e.send(ctx, message, images, cancel, onEvent)
}

// preprocessMentions scans text for "@path" tokens, resolving each to a
// text or image block and stripping the token from the returned text.
func (e *Engine) preprocessMentions(text string) (string, []models.Block, error) {
	var blocks []models.Block
	seen := map[string]bool{}

	cleaned := atMentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := atMentionPattern.FindStringSubmatch(match)
		lead, raw := groups[1], groups[2]
		path := expandHome(raw)
		if seen[path] {
			return lead
		}
		seen[path] = true

		data, err := os.ReadFile(path)
		if err != nil {
			return lead + "@" + raw
		}
		if mt, ok := sniffImageType(data); ok {
			blocks = append(blocks, models.ImageBlock{MediaType: mt, Bytes: data})
			blocks = append(blocks, models.TextBlock{Text: fmt.Sprintf("[attached image: %s]", raw)})
		} else {
			blocks = append(blocks, models.TextBlock{Text: fmt.Sprintf("Context from file '%s':\n%s", raw, string(data))})
		}
		return lead
	})

	return strings.TrimSpace(cleaned), blocks, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func sniffImageType(data []byte) (models.MediaType, bool) {
	switch {
	case len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return models.MediaPNG, true
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8:
		return models.MediaJPEG, true
	case len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return models.MediaGIF, true
	case len(data) >= 12 && string(data[8:12]) == "WEBP":
		return models.MediaWebP, true
	default:
		return "", false
	}
}

// runShellEscape executes bash directly, bypassing policy by contract
// (explicit user action via the leading "!").
func (e *Engine) runShellEscape(ctx context.Context, command string) (AssistantOutput, error) {
	result, err := e.Executor.ExecuteSingle(ctx, "bash", []byte(fmt.Sprintf(`{"command":%q}`, command)))
	if err != nil {
		return AssistantOutput{}, err
	}
	e.conv.Messages = append(e.conv.Messages, models.Message{
		Role:      models.RoleUser,
		Blocks:    []models.Block{models.ToolResultBlock{ToolUseID: "shell-escape", Content: result.Content, IsError: result.IsError}},
		CreatedAt: time.Now(),
	})
	return AssistantOutput{Text: result.Content}, nil
}

// loop implements the turn loop from the runtime's turn-loop contract.
func (e *Engine) loop(ctx context.Context, cancel *CancelFlag, onEvent func(StreamEvent)) (AssistantOutput, error) {
	var usage models.Usage

	for turn := 0; turn < MaxTurnsPerSend; turn++ {
		if cancel != nil && cancel.Observed() {
			return AssistantOutput{Cancelled: true, Usage: usage}, Cancelled
		}

		tools := e.refreshTools(ctx)
		req := &CompletionRequest{
			Model:     e.conv.Model,
			System:    e.effectiveSystem(),
			Messages:  e.conv.Messages,
			Tools:     tools,
			MaxTokens: 4096,
			Stream:    onEvent != nil,
		}

		chunks, err := e.Provider.Complete(ctx, req)
		if err != nil {
			return AssistantOutput{Usage: usage}, err
		}

		var collected []*CompletionChunk
		for chunk := range chunks {
			if cancel != nil && cancel.Observed() {
				return AssistantOutput{Cancelled: true, Usage: usage}, Cancelled
			}
			if chunk.Error != nil {
				if onEvent != nil {
					onEvent(StreamEvent{Kind: "error", Err: chunk.Error})
				}
				return AssistantOutput{Usage: usage}, chunk.Error
			}
			collected = append(collected, chunk)
			if chunk.Text != "" && onEvent != nil {
				onEvent(StreamEvent{Kind: "text", Text: chunk.Text})
			}
			if chunk.ToolCall != nil && onEvent != nil {
				onEvent(StreamEvent{Kind: "tool_call", ToolCallID: chunk.ToolCall.ID, ToolName: chunk.ToolCall.Name, ToolInput: chunk.ToolCall.Input})
			}
		}

		assistantMsg, turnUsage := AssistantMessage(collected)
		usage.Add(turnUsage)
		assistantMsg.CreatedAt = time.Now()
		e.conv.Messages = append(e.conv.Messages, assistantMsg)
		e.conv.Usage.Add(turnUsage)

		toolUses := models.ToolUseBlocks(assistantMsg.Blocks)
		if len(toolUses) == 0 {
			return AssistantOutput{Text: models.TextOf(assistantMsg.Blocks), Usage: usage}, nil
		}

		var resultBlocks []models.Block
		for _, tu := range toolUses {
			if cancel != nil && cancel.Observed() {
				return AssistantOutput{Cancelled: true, Usage: usage}, Cancelled
			}

			result, decision := e.dispatch(ctx, tu, cancel, onEvent)
			if decision != nil && onEvent != nil {
				onEvent(StreamEvent{Kind: "permission_request", ToolCallID: tu.ID, PermissionPrompt: decision})
			}
			if onEvent != nil {
				onEvent(StreamEvent{Kind: "tool_result", ToolCallID: tu.ID, ToolResult: result.Content, IsError: result.IsError})
			}
			resultBlocks = append(resultBlocks, result.ToBlock())
		}

		e.conv.Messages = append(e.conv.Messages, models.Message{Role: models.RoleUser, Blocks: resultBlocks, CreatedAt: time.Now()})
	}

	return AssistantOutput{Usage: usage}, ErrMaxIterations
}

// dispatch evaluates policy for a tool_use block and either executes it, or
// suspends on a Prompt decision until the mediator resolves it.
func (e *Engine) dispatch(ctx context.Context, tu models.ToolUseBlock, cancel *CancelFlag, onEvent func(StreamEvent)) (models.ToolResult, *models.Decision) {
	if result, ok := todo.Dispatch(e.conv, tu.Name, tu.Input); ok {
		result.ToolCallID = tu.ID
		return result, nil
	}

	preDirective, err := e.runHook(ctx, hooks.PreTool, hooks.ToolPayload{
		Point:          hooks.PreTool,
		ConversationID: e.conv.ID,
		ToolName:       tu.Name,
		ToolArguments:  json.RawMessage(tu.Input),
	})
	if err != nil {
		return models.ToolResult{ToolCallID: tu.ID, Content: err.Error(), IsError: true}, nil
	}
	if preDirective.Aborted() {
		return models.ToolResult{ToolCallID: tu.ID, Content: "pre_tool hook aborted: " + preDirective.Message, IsError: true}, nil
	}
	if len(preDirective.ToolArguments) > 0 {
		tu.Input = []byte(preDirective.ToolArguments)
	}

	isMCP := false
	if def, ok := e.Registry.Lookup(tu.Name); ok {
		isMCP = def.Origin == models.OriginMCP
	}
	subject := dispatchSubject(tu)

	decision := e.Mediator.Evaluate(tu.Name, subject, isMCP)
	switch decision.Kind {
	case models.DecisionDeny:
		return models.ToolResult{ToolCallID: tu.ID, Content: "denied: " + decision.Reason, IsError: true}, nil
	case models.DecisionPrompt:
		domain := models.DomainFile
		if tu.Name == "bash" {
			domain = models.DomainBash
		}
		perm, resultCh := e.Mediator.RegisterPrompt(ctx, e.conv.ID, decision, domain)
		idx, ok := <-resultCh
		if !ok || idx < 0 || idx >= len(perm.Options) || strings.Contains(perm.Options[idx].Label, "Deny") {
			return models.ToolResult{ToolCallID: tu.ID, Content: "denied by user", IsError: true}, &decision
		}
	}

	result, err := e.Executor.ExecuteSingle(ctx, tu.Name, tu.Input)
	if err != nil {
		return models.ToolResult{ToolCallID: tu.ID, Content: err.Error(), IsError: true}, nil
	}
	result.ToolCallID = tu.ID

	postDirective, err := e.runHook(ctx, hooks.PostTool, hooks.ToolPayload{
		Point:          hooks.PostTool,
		ConversationID: e.conv.ID,
		ToolName:       tu.Name,
		ToolResult:     result.Content,
		IsError:        result.IsError,
	})
	if err != nil {
		return models.ToolResult{ToolCallID: tu.ID, Content: err.Error(), IsError: true}, nil
	}
	if postDirective.Aborted() {
		return models.ToolResult{ToolCallID: tu.ID, Content: "post_tool hook aborted: " + postDirective.Message, IsError: true}, nil
	}

	return *result, nil
}

func dispatchSubject(tu models.ToolUseBlock) string {
	switch tu.Name {
	case "bash":
		return extractStringField(tu.Input, "command")
	case "read_file", "write_file", "edit_file", "create_directory", "delete_file":
		return extractStringField(tu.Input, "path")
	default:
		return string(tu.Input)
	}
}

func extractStringField(input []byte, field string) string {
	marker := `"` + field + `":"`
	idx := strings.Index(string(input), marker)
	if idx < 0 {
		return ""
	}
	rest := string(input)[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return rest
	}
	value, err := strconv.Unquote(`"` + rest[:end] + `"`)
	if err != nil {
		return rest[:end]
	}
	return value
}

// refreshTools reuses the cached tool list unless the MCP aggregate version
// changed since the last turn. In plan-mode MCP tools are withheld.
func (e *Engine) refreshTools(ctx context.Context) []models.ToolDefinition {
	var tools []models.ToolDefinition
	if e.ToolSet == nil {
		tools = e.Registry.Definitions()
	} else {
		version := e.ToolSet.ToolsVersion()
		if version != e.cachedVersion || e.cachedTools == nil {
			e.cachedTools = e.ToolSet.Tools(ctx)
			e.cachedVersion = version
		}
		tools = e.cachedTools
	}
	tools = append(append([]models.ToolDefinition{}, tools...), todo.Definitions()...)

	if !e.conv.PlanMode {
		return tools
	}
	var readOnly []models.ToolDefinition
	for _, t := range tools {
		if t.Origin == models.OriginMCP {
			continue
		}
		if MutatingTools[t.Name] {
			continue
		}
		readOnly = append(readOnly, t)
	}
	return readOnly
}

func (e *Engine) effectiveSystem() string {
	if e.conv.SystemPromptOverride != "" {
		return e.conv.SystemPromptOverride
	}
	return e.system
}

// AddContextFile resolves path, reads it as text or image, and appends an
// annotated user-role block, deduplicating exact-path repeats already on
// Conversation.ContextFiles.
func (e *Engine) AddContextFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved := expandHome(path)
	if !filepath.IsAbs(resolved) && e.Workspace != "" {
		resolved = filepath.Join(e.Workspace, resolved)
	}
	if e.conv.HasContextFile(resolved) {
		return nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("add_context_file: %w", err)
	}

	var block models.Block
	if mt, ok := sniffImageType(data); ok {
		block = models.ImageBlock{MediaType: mt, Bytes: data}
	} else {
		block = models.TextBlock{Text: fmt.Sprintf("Context from file '%s':\n%s", path, string(data))}
	}

	e.conv.Messages = append(e.conv.Messages, models.Message{Role: models.RoleUser, Blocks: []models.Block{block}, CreatedAt: time.Now()})
	e.conv.ContextFiles = append(e.conv.ContextFiles, resolved)
	return nil
}

// Clear drops messages, optionally re-seeding with the project AGENTS.md.
func (e *Engine) Clear(keepAgentsMD bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.conv.Messages = nil
	e.conv.ContextFiles = nil
	e.conv.Usage = models.Usage{}
	if keepAgentsMD && e.agentsMD != "" {
		e.conv.Messages = append(e.conv.Messages, models.Message{
			Role:      models.RoleUser,
			Blocks:    []models.Block{models.TextBlock{Text: e.agentsMD}},
			CreatedAt: time.Now(),
		})
	}
}

// ExecuteSavedPlan disables plan-mode and injects plan markdown as a user
// message, driving the loop to quiescence.
func (e *Engine) ExecuteSavedPlan(ctx context.Context, planMarkdown string, cancel *CancelFlag, onEvent func(StreamEvent)) (AssistantOutput, error) {
	e.mu.Lock()
	e.conv.PlanMode = false
	e.mu.Unlock()
	return e.send(ctx, planMarkdown, nil, cancel, onEvent)
}

// Conversation returns the engine's underlying conversation state.
func (e *Engine) Conversation() *models.Conversation { return e.conv }
