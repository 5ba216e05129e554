package providers

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func newTestAnthropicProvider(t *testing.T) *AnthropicProvider {
	t.Helper()
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	return p
}

func TestAnthropicGetModelFallsBackToDefault(t *testing.T) {
	p := newTestAnthropicProvider(t)
	if got := p.getModel(""); got != p.defaultModel {
		t.Errorf("getModel(\"\") = %q, want %q", got, p.defaultModel)
	}
	if got := p.getModel("claude-opus-4-20250514"); got != "claude-opus-4-20250514" {
		t.Errorf("getModel override = %q", got)
	}
}

func TestAnthropicGetMaxTokensDefaults(t *testing.T) {
	p := newTestAnthropicProvider(t)
	if got := p.getMaxTokens(0); got != 4096 {
		t.Errorf("getMaxTokens(0) = %d, want 4096", got)
	}
	if got := p.getMaxTokens(512); got != 512 {
		t.Errorf("getMaxTokens(512) = %d, want 512", got)
	}
}

func TestAnthropicConvertMessagesPairsToolResultIntoUserMessage(t *testing.T) {
	p := newTestAnthropicProvider(t)
	msgs := []models.Message{
		{Role: models.RoleUser, Blocks: []models.Block{models.TextBlock{Text: "list files"}}},
		{Role: models.RoleAssistant, Blocks: []models.Block{
			models.ToolUseBlock{ID: "tu_1", Name: "list_directory", Input: json.RawMessage(`{"path":"."}`)},
		}},
		{Role: models.RoleUser, Blocks: []models.Block{
			models.ToolResultBlock{ToolUseID: "tu_1", Content: "a.go\nb.go"},
		}},
	}

	out, err := p.convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[1].Role != "assistant" {
		t.Errorf("message 1 role = %s, want assistant", out[1].Role)
	}
	if out[2].Role != "user" {
		t.Errorf("message 2 role = %s, want user", out[2].Role)
	}
}

func TestAnthropicConvertMessagesSkipsSystemRole(t *testing.T) {
	p := newTestAnthropicProvider(t)
	msgs := []models.Message{
		{Role: models.RoleSystem, Blocks: []models.Block{models.TextBlock{Text: "be terse"}}},
		{Role: models.RoleUser, Blocks: []models.Block{models.TextBlock{Text: "hi"}}},
	}
	out, err := p.convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected system message to be skipped, got %d messages", len(out))
	}
}
