package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

func registerTestTool(t *testing.T, r *ToolRegistry, name string, fn ToolHandler) {
	t.Helper()
	r.Register(models.ToolDefinition{Name: name, Description: "test tool"}, fn)
}

func TestExecuteSequentiallyRunsInOrder(t *testing.T) {
	registry := NewToolRegistry()
	var order []string
	var mu sync.Mutex

	registerTestTool(t, registry, "tool_a", func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		mu.Lock()
		order = append(order, "a")
		mu.Unlock()
		return &models.ToolResult{Content: "a"}, nil
	})
	registerTestTool(t, registry, "tool_b", func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
		return &models.ToolResult{Content: "b"}, nil
	})

	executor := NewToolExecutor(registry, DefaultToolExecConfig())
	toolCalls := []models.ToolCall{
		{ID: "1", Name: "tool_a"},
		{ID: "2", Name: "tool_b"},
	}

	results := executor.ExecuteSequentially(context.Background(), toolCalls)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("execution order = %v, want [a b]", order)
	}
	if results[0].Result.Content != "a" || results[1].Result.Content != "b" {
		t.Fatalf("results = %+v", results)
	}
}

func TestExecuteSequentiallyTimesOut(t *testing.T) {
	registry := NewToolRegistry()
	registerTestTool(t, registry, "slow", func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		<-ctx.Done()
		return &models.ToolResult{Content: "should not reach"}, nil
	})

	executor := NewToolExecutor(registry, ToolExecConfig{PerToolTimeout: 50 * time.Millisecond, MaxAttempts: 1})
	results := executor.ExecuteSequentially(context.Background(), []models.ToolCall{{ID: "1", Name: "slow"}})

	if len(results) != 1 || !results[0].TimedOut || !results[0].Result.IsError {
		t.Fatalf("expected timed-out error result, got %+v", results)
	}
}

func TestExecuteSequentiallyRetriesThenSucceeds(t *testing.T) {
	var attempts int32
	registry := NewToolRegistry()
	registerTestTool(t, registry, "flaky", func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return &models.ToolResult{Content: "error", IsError: true}, nil
		}
		return &models.ToolResult{Content: "success"}, nil
	})

	executor := NewToolExecutor(registry, ToolExecConfig{PerToolTimeout: 5 * time.Second, MaxAttempts: 2, RetryBackoff: time.Millisecond})
	results := executor.ExecuteSequentially(context.Background(), []models.ToolCall{{ID: "1", Name: "flaky"}})

	if results[0].Result.IsError {
		t.Error("expected success after retry")
	}
}

func TestExecuteSequentiallyAbortsRemainingOnCancel(t *testing.T) {
	registry := NewToolRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	registerTestTool(t, registry, "cancels", func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		cancel()
		return &models.ToolResult{Content: "first"}, nil
	})
	registerTestTool(t, registry, "never_runs", func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		t.Fatal("second tool call should not execute after cancellation")
		return nil, nil
	})

	executor := NewToolExecutor(registry, DefaultToolExecConfig())
	results := executor.ExecuteSequentially(ctx, []models.ToolCall{{ID: "1", Name: "cancels"}, {ID: "2", Name: "never_runs"}})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[1].Result.IsError || results[1].Result.Content != "cancelled" {
		t.Fatalf("expected second result to be cancelled, got %+v", results[1])
	}
}

func TestExecuteSingleSuccess(t *testing.T) {
	registry := NewToolRegistry()
	registerTestTool(t, registry, "echo", func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		return &models.ToolResult{Content: string(input)}, nil
	})

	executor := NewToolExecutor(registry, DefaultToolExecConfig())
	result, err := executor.ExecuteSingle(context.Background(), "echo", json.RawMessage(`"hello"`))
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if result.Content != `"hello"` {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestExecuteSingleToolNotFound(t *testing.T) {
	registry := NewToolRegistry()
	executor := NewToolExecutor(registry, DefaultToolExecConfig())

	result, err := executor.ExecuteSingle(context.Background(), "nonexistent", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError=true for nonexistent tool")
	}
}

func TestExecuteSingleAllRetriesFail(t *testing.T) {
	registry := NewToolRegistry()
	registerTestTool(t, registry, "always_fails", func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		return nil, errors.New("permanent failure")
	})

	executor := NewToolExecutor(registry, ToolExecConfig{PerToolTimeout: 5 * time.Second, MaxAttempts: 2, RetryBackoff: time.Millisecond})
	if _, err := executor.ExecuteSingle(context.Background(), "always_fails", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestDefaultToolExecConfig(t *testing.T) {
	config := DefaultToolExecConfig()
	if config.PerToolTimeout != 30*time.Second {
		t.Errorf("PerToolTimeout = %v, want 30s", config.PerToolTimeout)
	}
	if config.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", config.MaxAttempts)
	}
}

func TestNewToolExecutorDefaultsZeroValues(t *testing.T) {
	executor := NewToolExecutor(NewToolRegistry(), ToolExecConfig{})
	if executor.config.PerToolTimeout != 30*time.Second {
		t.Errorf("PerToolTimeout = %v, want 30s", executor.config.PerToolTimeout)
	}
	if executor.config.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", executor.config.MaxAttempts)
	}
}
