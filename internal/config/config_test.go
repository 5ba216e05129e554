package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestDefaultAppliesProvider(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Provider != "anthropic" {
		t.Fatalf("expected default provider anthropic, got %q", cfg.LLM.Provider)
	}
	if cfg.Version != CurrentVersion {
		t.Fatalf("expected version %d, got %d", CurrentVersion, cfg.Version)
	}
}

func TestLoadParsesYAMLAndExpandsEnv(t *testing.T) {
	t.Setenv("NEXUS_TEST_BASE_URL", "https://example.invalid/v1")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
version: 1
llm:
  provider: openai
  model: gpt-4o
  base_url_overrides:
    openai: ${NEXUS_TEST_BASE_URL}
  temperature: 0.2
policy:
  yolo: false
  allow:
    bash:
      - pattern: "git status"
        exact: true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o" {
		t.Fatalf("unexpected LLM config: %+v", cfg.LLM)
	}
	if cfg.LLM.BaseURLOverrides["openai"] != "https://example.invalid/v1" {
		t.Fatalf("expected env-expanded base URL, got %q", cfg.LLM.BaseURLOverrides["openai"])
	}
	if !cfg.LLM.TemperatureSet || cfg.LLM.Temperature != 0.2 {
		t.Fatalf("expected temperature 0.2 to be recorded as set, got %+v", cfg.LLM)
	}
	pol := cfg.Policy.ToPermissionPolicy()
	if len(pol.Allow[models.DomainBash]) != 1 || pol.Allow[models.DomainBash][0].Pattern != "git status" {
		t.Fatalf("expected one bash allow rule, got %+v", pol.Allow)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  provider: carrier-pigeon\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for unknown provider")
	}
	verr, ok := err.(*ConfigValidationError)
	if !ok {
		t.Fatalf("expected *ConfigValidationError, got %T (%v)", err, err)
	}
	if len(verr.Issues) == 0 {
		t.Fatal("expected at least one issue")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("not_a_real_field: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error for unknown top-level field")
	}
}

func TestPolicyConfigIgnoresUnknownDomain(t *testing.T) {
	cfg := PolicyConfig{
		Allow: map[string][]PatternConfig{
			"network": {{Pattern: "*", Exact: false}},
		},
	}
	pol := cfg.ToPermissionPolicy()
	if len(pol.Allow) != 0 {
		t.Fatalf("expected unknown domain to be dropped, got %+v", pol.Allow)
	}
}
