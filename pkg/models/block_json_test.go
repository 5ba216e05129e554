package models

import (
	"encoding/json"
	"testing"
)

func TestMessageRoundTripPreservesBlockKinds(t *testing.T) {
	orig := Message{
		Role: RoleAssistant,
		Blocks: []Block{
			TextBlock{Text: "here is what I found"},
			ToolUseBlock{ID: "tu_1", Name: "read_file", Input: json.RawMessage(`{"path":"a.go"}`)},
		},
	}

	raw, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Message
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(got.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(got.Blocks))
	}
	if _, ok := got.Blocks[0].(TextBlock); !ok {
		t.Errorf("blocks[0] = %T, want TextBlock", got.Blocks[0])
	}
	tu, ok := got.Blocks[1].(ToolUseBlock)
	if !ok {
		t.Fatalf("blocks[1] = %T, want ToolUseBlock", got.Blocks[1])
	}
	if tu.ID != "tu_1" || tu.Name != "read_file" {
		t.Errorf("tool use block = %+v", tu)
	}
}

func TestMessageRoundTripPreservesImageBytes(t *testing.T) {
	orig := Message{
		Role:   RoleUser,
		Blocks: []Block{ImageBlock{MediaType: MediaPNG, Bytes: []byte{0x89, 0x50, 0x4e, 0x47}}},
	}

	raw, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Message
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	img, ok := got.Blocks[0].(ImageBlock)
	if !ok {
		t.Fatalf("blocks[0] = %T, want ImageBlock", got.Blocks[0])
	}
	if string(img.Bytes) != "\x89PNG" {
		t.Errorf("image bytes = %x, want 89504e47", img.Bytes)
	}
}

func TestDecodeBlockRejectsToolUseWithoutName(t *testing.T) {
	_, err := decodeBlock(json.RawMessage(`{"kind":"tool_use","id":"tu_1"}`))
	if err == nil {
		t.Fatal("expected error for tool_use block missing name")
	}
}

func TestDecodeBlockRejectsToolResultWithoutID(t *testing.T) {
	_, err := decodeBlock(json.RawMessage(`{"kind":"tool_result","content":"ok"}`))
	if err == nil {
		t.Fatal("expected error for tool_result block missing tool_use_id")
	}
}

func TestHasToolUse(t *testing.T) {
	m := Message{Blocks: []Block{TextBlock{Text: "hi"}}}
	if m.HasToolUse() {
		t.Error("expected no tool use")
	}
	m.Blocks = append(m.Blocks, ToolUseBlock{ID: "x", Name: "bash"})
	if !m.HasToolUse() {
		t.Error("expected tool use")
	}
}
