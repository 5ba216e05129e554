package hooks

import (
	"context"
	"testing"
)

func TestRunnerNilManifestIsNoOp(t *testing.T) {
	r := NewRunner(nil, nil)
	d, err := r.Run(context.Background(), PreMessage, MessagePayload{Point: PreMessage, UserMessage: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Aborted() {
		t.Fatal("expected no-op directive")
	}
}

func TestRunnerReplacesUserMessage(t *testing.T) {
	manifest := &Manifest{
		PreMessage: []Def{{
			Command: []string{"sh", "-c", `echo '{"user_message":"rewritten"}'`},
		}},
	}
	r := NewRunner(manifest, nil)
	d, err := r.Run(context.Background(), PreMessage, MessagePayload{Point: PreMessage, UserMessage: "original"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.UserMessage == nil || *d.UserMessage != "rewritten" {
		t.Fatalf("expected rewritten user message, got %+v", d)
	}
}

func TestRunnerAbortStopsTurn(t *testing.T) {
	manifest := &Manifest{
		PreTool: []Def{{
			Command: []string{"sh", "-c", `echo '{"action":"abort","message":"blocked"}'`},
		}},
	}
	r := NewRunner(manifest, nil)
	d, err := r.Run(context.Background(), PreTool, ToolPayload{Point: PreTool, ToolName: "bash"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !d.Aborted() || d.Message != "blocked" {
		t.Fatalf("expected abort directive, got %+v", d)
	}
}

func TestRunnerContinueOnErrorSwallowsFailure(t *testing.T) {
	manifest := &Manifest{
		PostTool: []Def{{
			Command:         []string{"sh", "-c", "exit 1"},
			ContinueOnError: true,
		}},
	}
	r := NewRunner(manifest, nil)
	d, err := r.Run(context.Background(), PostTool, ToolPayload{Point: PostTool, ToolName: "bash"})
	if err != nil {
		t.Fatalf("expected continue_on_error to swallow failure, got %v", err)
	}
	if d.Aborted() {
		t.Fatal("expected no directive from a failed, swallowed hook")
	}
}

func TestRunnerNonJSONStdoutIsIgnored(t *testing.T) {
	manifest := &Manifest{
		PostMessage: []Def{{Command: []string{"echo", "not json"}}},
	}
	r := NewRunner(manifest, nil)
	d, err := r.Run(context.Background(), PostMessage, MessagePayload{Point: PostMessage})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Aborted() || d.UserMessage != nil {
		t.Fatalf("expected empty directive, got %+v", d)
	}
}

func TestRunnerFailsClosedWithoutContinueOnError(t *testing.T) {
	manifest := &Manifest{
		PreTool: []Def{{Command: []string{"sh", "-c", "exit 1"}}},
	}
	r := NewRunner(manifest, nil)
	if _, err := r.Run(context.Background(), PreTool, ToolPayload{Point: PreTool}); err == nil {
		t.Fatal("expected error from failing hook without continue_on_error")
	}
}
