package providers

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestConvertToOpenAIMessagesSplitsToolResultIntoToolRole(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Blocks: []models.Block{models.TextBlock{Text: "run it"}}},
		{Role: models.RoleAssistant, Blocks: []models.Block{
			models.ToolUseBlock{ID: "call_1", Name: "bash", Input: json.RawMessage(`{"command":"ls"}`)},
		}},
		{Role: models.RoleUser, Blocks: []models.Block{
			models.ToolResultBlock{ToolUseID: "call_1", Content: "a.go"},
		}},
	}

	out, err := convertToOpenAIMessages(msgs, "be terse")
	if err != nil {
		t.Fatalf("convertToOpenAIMessages: %v", err)
	}
	if out[0].Role != "system" || out[0].Content != "be terse" {
		t.Fatalf("expected leading system message, got %+v", out[0])
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(out), out)
	}
	if out[1].ToolCalls[0].ID != "call_1" {
		t.Errorf("assistant tool call id = %q", out[1].ToolCalls[0].ID)
	}
	if out[2].Role != "tool" || out[2].ToolCallID != "call_1" {
		t.Errorf("expected tool-role reply, got %+v", out[2])
	}
}

func TestConvertToOpenAIToolsDefaultsEmptySchema(t *testing.T) {
	defs := []models.ToolDefinition{{Name: "list_todos", Description: "list todos"}}
	out, err := convertToOpenAITools(defs)
	if err != nil {
		t.Fatalf("convertToOpenAITools: %v", err)
	}
	if out[0].Function.Parameters.(map[string]any)["type"] != "object" {
		t.Errorf("expected default object schema, got %+v", out[0].Function.Parameters)
	}
}

func TestOpenAICompatibleIsRetryableError(t *testing.T) {
	p := newOpenAICompatible("openai", "key", "", "gpt-4o", 3, 0)
	cases := map[string]bool{
		"429 rate limit":           true,
		"503 service unavailable":  true,
		"context deadline exceeded": true,
		"invalid api key":          false,
	}
	for msg, want := range cases {
		if got := p.isRetryableError(errString(msg)); got != want {
			t.Errorf("isRetryableError(%q) = %v, want %v", msg, got, want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
