package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestToolRegistryExecuteUnknownTool(t *testing.T) {
	r := NewToolRegistry()
	result, err := r.Execute(context.Background(), "nope", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for unknown tool")
	}
}

func TestToolRegistryValidatesInputAgainstSchema(t *testing.T) {
	r := NewToolRegistry()
	r.Register(models.ToolDefinition{
		Name:        "echo",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
	}, func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		return &models.ToolResult{Content: "ok"}, nil
	})

	result, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"text":42}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected a schema validation error for wrong type")
	}

	result, err = r.Execute(context.Background(), "echo", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected a schema validation error for missing required field")
	}

	result, err = r.Execute(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Errorf("expected valid input to pass, got error: %s", result.Content)
	}
}

func TestToolRegistrySkipsValidationWithoutSchema(t *testing.T) {
	r := NewToolRegistry()
	r.Register(models.ToolDefinition{Name: "noop"}, func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		return &models.ToolResult{Content: "ok"}, nil
	})

	result, err := r.Execute(context.Background(), "noop", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Errorf("expected no-schema tool to skip validation, got error: %s", result.Content)
	}
}

func TestToolRegistryUnregisterRemovesSchema(t *testing.T) {
	r := NewToolRegistry()
	def := models.ToolDefinition{
		Name:        "echo",
		InputSchema: json.RawMessage(`{"type":"object","required":["text"]}`),
	}
	r.Register(def, func(ctx context.Context, input json.RawMessage) (*models.ToolResult, error) {
		return &models.ToolResult{Content: "ok"}, nil
	})
	r.Unregister("echo")

	if _, ok := r.Lookup("echo"); ok {
		t.Fatal("expected echo to be unregistered")
	}
}
