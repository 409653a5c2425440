package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Logger.Level != "info" || cfg.Logger.Format != "text" {
		t.Errorf("logger defaults = %+v", cfg.Logger)
	}
	if cfg.Guard.MaxInputLength != 10000 {
		t.Errorf("guard.max_input_length = %d, want 10000", cfg.Guard.MaxInputLength)
	}
	if cfg.Guard.BlockThreshold != "high" {
		t.Errorf("guard.block_threshold = %q, want high", cfg.Guard.BlockThreshold)
	}
	if cfg.ContextWindow.Counter != "heuristic" {
		t.Errorf("context_window.counter = %q, want heuristic", cfg.ContextWindow.Counter)
	}
	if cfg.Tools.MaxConcurrent != 4 || cfg.Tools.RatePerMinute != 60 {
		t.Errorf("tools defaults = %+v", cfg.Tools)
	}
	if cfg.Orchestrator.PerSkillDuration != 30*time.Second {
		t.Errorf("per_skill_duration = %v, want 30s", cfg.Orchestrator.PerSkillDuration)
	}
	if cfg.Orchestrator.PerSkillCost != 5.0 {
		t.Errorf("per_skill_cost = %v, want 5.0", cfg.Orchestrator.PerSkillCost)
	}
	if cfg.Orchestrator.EventBuffer != 64 {
		t.Errorf("event_buffer = %d, want 64", cfg.Orchestrator.EventBuffer)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guard.MaxInputLength != 10000 {
		t.Errorf("expected defaults, got %+v", cfg.Guard)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamforge.yaml")
	data := `
logger:
  level: debug
  format: json
guard:
  block_threshold: critical
tools:
  rate_per_minute: 10
providers:
  - name: openai
    base_url: https://api.openai.com/v1
    api_key_env: TEST_OPENAI_KEY
    model: gpt-4o
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "debug" || cfg.Logger.Format != "json" {
		t.Errorf("logger = %+v", cfg.Logger)
	}
	if cfg.Guard.BlockThreshold != "critical" {
		t.Errorf("block_threshold = %q", cfg.Guard.BlockThreshold)
	}
	if cfg.Tools.RatePerMinute != 10 {
		t.Errorf("rate_per_minute = %d", cfg.Tools.RatePerMinute)
	}
	// Unset fields still get defaults.
	if cfg.Tools.MaxConcurrent != 4 {
		t.Errorf("max_concurrent = %d, want default 4", cfg.Tools.MaxConcurrent)
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("providers = %d, want 1", len(cfg.Providers))
	}
	if cfg.Providers[0].Timeout != 60*time.Second {
		t.Errorf("provider timeout = %v, want default 60s", cfg.Providers[0].Timeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad logger format", "logger:\n  format: xml\n"},
		{"bad counter", "context_window:\n  counter: exact\n"},
		{"bad threshold", "guard:\n  block_threshold: extreme\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestProviderAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TEAMFORGE_TEST_KEY", "secret-value")

	p := ProviderConfig{APIKeyEnv: "TEAMFORGE_TEST_KEY"}
	if got := p.APIKey(); got != "secret-value" {
		t.Errorf("APIKey() = %q", got)
	}
	if got := (ProviderConfig{}).APIKey(); got != "" {
		t.Errorf("empty APIKeyEnv should yield empty key, got %q", got)
	}
}
