package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/pkg/models"
)

// ToolExecConfig configures tool execution timeouts and retry behavior.
// Tool calls within a turn are executed one at a time (see ToolExecutor.
// ExecuteSequentially) - the mediator's advisory per-conversation lock
// already serializes turns, and bash/file handlers are not safe to
// fan out concurrently against the same workspace.
type ToolExecConfig struct {
	// PerToolTimeout bounds a single tool call. Default: 30 seconds.
	PerToolTimeout time.Duration

	// MaxAttempts is the number of attempts per tool call (default 1).
	MaxAttempts int

	// RetryBackoff waits between retries.
	RetryBackoff time.Duration
}

// DefaultToolExecConfig returns a 30 second timeout with no retries.
func DefaultToolExecConfig() ToolExecConfig {
	return ToolExecConfig{PerToolTimeout: 30 * time.Second, MaxAttempts: 1}
}

// ToolExecutor runs tool calls against a ToolRegistry with per-call
// timeouts and optional retries.
type ToolExecutor struct {
	registry *ToolRegistry
	config   ToolExecConfig
}

// NewToolExecutor creates an executor with the given registry. Zero fields
// in config fall back to DefaultToolExecConfig.
func NewToolExecutor(registry *ToolRegistry, config ToolExecConfig) *ToolExecutor {
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	return &ToolExecutor{registry: registry, config: config}
}

// ToolExecResult carries a tool call's outcome plus timing for logging and
// diagnostics.
type ToolExecResult struct {
	ToolCall  models.ToolCall
	Result    models.ToolResult
	StartTime time.Time
	EndTime   time.Time
	TimedOut  bool
}

// ExecuteSequentially runs each tool call to completion before starting the
// next, in input order, per the engine's single-flight-per-turn contract.
func (e *ToolExecutor) ExecuteSequentially(ctx context.Context, toolCalls []models.ToolCall) []ToolExecResult {
	results := make([]ToolExecResult, len(toolCalls))

	for i, tc := range toolCalls {
		results[i] = e.executeOne(ctx, tc)
		if ctx.Err() != nil {
			for j := i + 1; j < len(toolCalls); j++ {
				results[j] = ToolExecResult{
					ToolCall: toolCalls[j],
					Result:   models.ToolResult{ToolCallID: toolCalls[j].ID, Content: "cancelled", IsError: true},
				}
			}
			break
		}
	}
	return results
}

func (e *ToolExecutor) executeOne(ctx context.Context, tc models.ToolCall) ToolExecResult {
	start := time.Now()
	maxAttempts := e.config.MaxAttempts

	var result models.ToolResult
	var timedOut bool
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, timedOut = e.executeWithTimeout(ctx, tc)
		if !result.IsError {
			break
		}
		if attempt < maxAttempts {
			if e.config.RetryBackoff > 0 {
				select {
				case <-time.After(e.config.RetryBackoff):
				case <-ctx.Done():
					result = models.ToolResult{ToolCallID: tc.ID, Content: "tool execution canceled", IsError: true}
					return ToolExecResult{ToolCall: tc, Result: result, StartTime: start, EndTime: time.Now(), TimedOut: timedOut}
				}
			}
		}
	}

	return ToolExecResult{ToolCall: tc, Result: result, StartTime: start, EndTime: time.Now(), TimedOut: timedOut}
}

// executeWithTimeout runs a single attempt with a bounded context, racing
// the registry's result against ctx cancellation so a misbehaving handler
// (e.g. bash not honoring SIGTERM) cannot wedge the turn forever.
func (e *ToolExecutor) executeWithTimeout(ctx context.Context, call models.ToolCall) (models.ToolResult, bool) {
	toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
	toolCtx = observability.AddToolCallID(toolCtx, call.ID)
	defer cancel()

	type execResult struct {
		result *models.ToolResult
		err    error
	}
	resultChan := make(chan execResult, 1)

	go func() {
		result, err := e.registry.Execute(toolCtx, call.Name, call.Input)
		select {
		case resultChan <- execResult{result: result, err: err}:
		default:
			slog.Warn("tool execution completed after timeout, result discarded",
				"tool", call.Name, "tool_call_id", call.ID,
				"run_id", observability.GetRunID(toolCtx),
				"session_id", observability.GetSessionID(toolCtx))
		}
	}()

	select {
	case <-toolCtx.Done():
		var content string
		timedOut := errors.Is(toolCtx.Err(), context.DeadlineExceeded)
		if timedOut {
			content = fmt.Sprintf("tool execution timed out after %v", e.config.PerToolTimeout)
		} else {
			content = "tool execution canceled"
		}
		return models.ToolResult{ToolCallID: call.ID, Content: content, IsError: true}, timedOut
	case res := <-resultChan:
		if res.err != nil {
			return models.ToolResult{ToolCallID: call.ID, Content: res.err.Error(), IsError: true}, false
		}
		return models.ToolResult{ToolCallID: call.ID, Content: res.result.Content, IsError: res.result.IsError}, false
	}
}

// ExecuteSingle executes a single tool call by name with timeout and retry
// logic, for callers outside the turn loop (e.g. execute_saved_plan steps).
func (e *ToolExecutor) ExecuteSingle(ctx context.Context, name string, input json.RawMessage) (*models.ToolResult, error) {
	maxAttempts := e.config.MaxAttempts
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		toolCtx, cancel := context.WithTimeout(ctx, e.config.PerToolTimeout)
		result, err := e.registry.Execute(toolCtx, name, input)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt < maxAttempts && e.config.RetryBackoff > 0 {
			select {
			case <-time.After(e.config.RetryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}
