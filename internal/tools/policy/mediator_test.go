package policy

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestEvaluateYOLOAllowsEverything(t *testing.T) {
	pol := models.NewPermissionPolicy()
	pol.YOLO = true
	m := NewMediator("/work", pol)

	d := m.Evaluate("bash", "rm -rf /", false)
	if d.Kind != models.DecisionAllow {
		t.Fatalf("expected allow under YOLO, got %v", d.Kind)
	}
}

func TestEvaluatePlanModeDeniesMutatingTool(t *testing.T) {
	pol := models.NewPermissionPolicy()
	pol.PlanMode = true
	m := NewMediator("/work", pol)

	d := m.Evaluate("write_file", "/work/a.go", false)
	if d.Kind != models.DecisionDeny {
		t.Fatalf("expected deny in plan mode, got %v", d.Kind)
	}
}

func TestEvaluateBashDenyWinsOverAllow(t *testing.T) {
	pol := models.NewPermissionPolicy()
	pol.AddAllow(models.DomainBash, "git", true)
	pol.AddDeny(models.DomainBash, "git push*", false)
	m := NewMediator("/work", pol)

	d := m.Evaluate("bash", "git push origin main", false)
	if d.Kind != models.DecisionDeny {
		t.Fatalf("expected deny, got %v (%s)", d.Kind, d.Reason)
	}
}

func TestEvaluateBashAllowsExactMatch(t *testing.T) {
	pol := models.NewPermissionPolicy()
	pol.AddAllow(models.DomainBash, "ls", true)
	m := NewMediator("/work", pol)

	d := m.Evaluate("bash", "ls -la", false)
	if d.Kind != models.DecisionAllow {
		t.Fatalf("expected allow, got %v", d.Kind)
	}
}

func TestEvaluateBashUnmatchedPrompts(t *testing.T) {
	pol := models.NewPermissionPolicy()
	m := NewMediator("/work", pol)

	d := m.Evaluate("bash", "curl https://example.com", false)
	if d.Kind != models.DecisionPrompt {
		t.Fatalf("expected prompt, got %v", d.Kind)
	}
	if len(d.Options) == 0 {
		t.Fatal("expected prompt options")
	}
}

func TestRegisterPromptTimesOutAndDenies(t *testing.T) {
	pol := models.NewPermissionPolicy()
	m := NewMediator("/work", pol)
	m.promptTO = 20 * time.Millisecond

	d := m.Evaluate("bash", "curl https://example.com", false)
	_, result := m.RegisterPrompt(context.Background(), "conv1", d, models.DomainBash)

	select {
	case v, ok := <-result:
		if ok {
			t.Fatalf("expected closed channel on timeout, got value %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for prompt timeout")
	}
}

func TestResolveAlwaysPersistsAllowPattern(t *testing.T) {
	pol := models.NewPermissionPolicy()
	m := NewMediator("/work", pol)

	d := m.Evaluate("bash", "npm install", false)
	perm, result := m.RegisterPrompt(context.Background(), "conv1", d, models.DomainBash)

	idx := -1
	for i, opt := range perm.Options {
		if opt.Label == "Always allow npm" {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatalf("expected an 'Always allow npm' option, got %+v", perm.Options)
	}

	if err := m.Resolve(perm.ID, idx); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := <-result; got != idx {
		t.Errorf("result channel = %d, want %d", got, idx)
	}

	d2 := m.Evaluate("bash", "npm install express", false)
	if d2.Kind != models.DecisionAllow {
		t.Fatalf("expected subsequent npm call to be allowed, got %v", d2.Kind)
	}
}

func TestValidateBashExecutableRejectsInjection(t *testing.T) {
	if ValidateBashExecutable("$(rm -rf /)") {
		t.Fatal("expected command substitution to be rejected")
	}
	if !ValidateBashExecutable("ls -la") {
		t.Fatal("expected plain command to validate")
	}
}
