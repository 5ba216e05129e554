package providers

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestGoogleConvertMessagesResolvesFunctionResponseName(t *testing.T) {
	p := &GoogleProvider{}
	msgs := []models.Message{
		{Role: models.RoleUser, Blocks: []models.Block{models.TextBlock{Text: "what's in a.go?"}}},
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
		t.Fatalf("expected 3 contents, got %d", len(out))
	}
	last := out[2]
	if len(last.Parts) != 1 || last.Parts[0].FunctionResponse == nil {
		t.Fatalf("expected a single function response part, got %+v", last.Parts)
	}
	if last.Parts[0].FunctionResponse.Name != "read_file" {
		t.Errorf("function response name = %q, want read_file", last.Parts[0].FunctionResponse.Name)
	}
}

func TestGoogleConvertMessagesSkipsSystemRole(t *testing.T) {
	p := &GoogleProvider{}
	msgs := []models.Message{
		{Role: models.RoleSystem, Blocks: []models.Block{models.TextBlock{Text: "ignored"}}},
		{Role: models.RoleUser, Blocks: []models.Block{models.TextBlock{Text: "hi"}}},
	}
	out, err := p.convertMessages(msgs)
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	if len(out) != 1 || out[0].Role != genai.RoleUser {
		t.Fatalf("expected single user content, got %+v", out)
	}
}

func TestGoogleGetModelFallsBackToDefault(t *testing.T) {
	p := &GoogleProvider{defaultModel: "gemini-2.0-flash"}
	if got := p.getModel(""); got != "gemini-2.0-flash" {
		t.Errorf("getModel(\"\") = %q", got)
	}
}
