package providers

import (
	"encoding/json"
	"testing"

	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestBedrockConvertMessagesPairsToolResult(t *testing.T) {
	p := &BedrockProvider{}
	msgs := []models.Message{
		{Role: models.RoleUser, Blocks: []models.Block{models.TextBlock{Text: "read a.go"}}},
		{Role: models.RoleAssistant, Blocks: []models.Block{
			models.ToolUseBlock{ID: "tu_1", Name: "read_file", Input: json.RawMessage(`{"path":"a.go"}`)},
		}},
		{Role: models.RoleUser, Blocks: []models.Block{
			models.ToolResultBlock{ToolUseID: "tu_1", Content: "package main"},
		}},
	}

	out, err := p.convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	if out[1].Role != brtypes.ConversationRoleAssistant {
		t.Errorf("expected assistant role for tool_use message, got %v", out[1].Role)
	}
	toolResult, ok := out[2].Content[0].(*brtypes.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("expected tool result content block, got %T", out[2].Content[0])
	}
	if toolResult.Value.Status != brtypes.ToolResultStatusSuccess {
		t.Errorf("expected success status, got %v", toolResult.Value.Status)
	}
}

func TestBedrockConvertMessagesSkipsSystemRole(t *testing.T) {
	p := &BedrockProvider{}
	msgs := []models.Message{
		{Role: models.RoleSystem, Blocks: []models.Block{models.TextBlock{Text: "ignored"}}},
		{Role: models.RoleUser, Blocks: []models.Block{models.TextBlock{Text: "hi"}}},
	}
	out, err := p.convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 1 || out[0].Role != brtypes.ConversationRoleUser {
		t.Fatalf("expected single user message, got %+v", out)
	}
}

func TestBedrockImageFormatRejectsUnsupportedMediaType(t *testing.T) {
	if _, err := bedrockImageFormat("image/bmp"); err == nil {
		t.Fatal("expected error for unsupported media type")
	}
}

func TestBedrockGetModelFallsBackToDefault(t *testing.T) {
	p := &BedrockProvider{defaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0"}
	if got := p.getModel(""); got != "anthropic.claude-3-5-sonnet-20241022-v2:0" {
		t.Errorf("getModel(\"\") = %q", got)
	}
}

func TestBedrockIsRetryableError(t *testing.T) {
	p := &BedrockProvider{}
	cases := map[string]bool{
		"ThrottlingException: rate exceeded":     true,
		"ServiceUnavailableException":            true,
		"ValidationException: bad input":         false,
		"AccessDeniedException: not authorized":  false,
	}
	for msg, want := range cases {
		if got := p.isRetryableError(errString(msg)); got != want {
			t.Errorf("isRetryableError(%q) = %v, want %v", msg, got, want)
		}
	}
}
