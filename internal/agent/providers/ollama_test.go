package providers

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestOllamaBuildMessagesFlattensTextAndPairsToolResult(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{})
	msgs := []models.Message{
		{Role: models.RoleUser, Blocks: []models.Block{models.TextBlock{Text: "list files"}}},
		{Role: models.RoleAssistant, Blocks: []models.Block{
			models.ToolUseBlock{ID: "tu_1", Name: "bash", Input: json.RawMessage(`{"command":"ls"}`)},
		}},
		{Role: models.RoleUser, Blocks: []models.Block{
			models.ToolResultBlock{ToolUseID: "tu_1", Content: "a.go b.go"},
		}},
	}

	out, err := p.buildOllamaMessages(msgs, "be terse")
	if err != nil {
		t.Fatalf("buildOllamaMessages: %v", err)
	}
	if out[0].Role != "system" || out[0].Content != "be terse" {
		t.Fatalf("expected leading system message, got %+v", out[0])
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(out), out)
	}
	if out[1].ToolCalls[0].Function.Name != "bash" {
		t.Errorf("assistant tool call name = %q", out[1].ToolCalls[0].Function.Name)
	}
	if out[2].Role != "tool" || out[2].Content != "a.go b.go" {
		t.Errorf("expected tool-role reply, got %+v", out[2])
	}
}

func TestOllamaGetModelFallsBackToDefault(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{DefaultModel: "llama3.1"})
	if got := p.getModel(""); got != "llama3.1" {
		t.Errorf("getModel(\"\") = %q", got)
	}
}

func TestNewOllamaProviderDefaultsBaseURL(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{})
	if p.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q", p.baseURL)
	}
}
