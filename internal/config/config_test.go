package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Backlog.Path != "BACKLOG.md" {
		t.Errorf("expected default backlog path 'BACKLOG.md', got %q", cfg.Backlog.Path)
	}

	if cfg.Engine.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Engine.MaxRetries)
	}

	if cfg.Engine.BackoffBase != time.Second {
		t.Errorf("expected backoff_base 1s, got %v", cfg.Engine.BackoffBase)
	}

	if cfg.Engine.BackoffCap != 30*time.Second {
		t.Errorf("expected backoff_cap 30s, got %v", cfg.Engine.BackoffCap)
	}

	if cfg.Engine.ConsecutiveFailureLimit != 2 {
		t.Errorf("expected consecutive_failure_limit 2, got %d", cfg.Engine.ConsecutiveFailureLimit)
	}

	if cfg.Runner.Kind != "command" {
		t.Errorf("expected default runner 'command', got %q", cfg.Runner.Kind)
	}

	if cfg.Runner.Timeout != 10*time.Minute {
		t.Errorf("expected runner timeout 10m, got %v", cfg.Runner.Timeout)
	}

	if cfg.LLM.MaxTokens != 8192 {
		t.Errorf("expected max_tokens 8192, got %d", cfg.LLM.MaxTokens)
	}

	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("expected watch debounce 500ms, got %v", cfg.Watch.Debounce)
	}
}

func TestLoadFromPath(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
backlog:
  path: docs/TODO.md
state:
  path: .cache/run.db
engine:
  max_retries: 5
  backoff_base: 2s
  backoff_cap: 1m
  consecutive_failure_limit: 4
runner:
  kind: claude
  workdir: /tmp/work
  timeout: 20m
llm:
  model: claude-sonnet-4-5
  api_key: test-key
  max_tokens: 4096
watch:
  debounce: 250ms
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Backlog.Path != "docs/TODO.md" {
		t.Errorf("expected backlog path 'docs/TODO.md', got %q", cfg.Backlog.Path)
	}

	if cfg.State.Path != ".cache/run.db" {
		t.Errorf("expected state path '.cache/run.db', got %q", cfg.State.Path)
	}

	if cfg.Engine.MaxRetries != 5 {
		t.Errorf("expected max_retries 5, got %d", cfg.Engine.MaxRetries)
	}

	if cfg.Engine.BackoffBase != 2*time.Second {
		t.Errorf("expected backoff_base 2s, got %v", cfg.Engine.BackoffBase)
	}

	if cfg.Engine.BackoffCap != time.Minute {
		t.Errorf("expected backoff_cap 1m, got %v", cfg.Engine.BackoffCap)
	}

	if cfg.Engine.ConsecutiveFailureLimit != 4 {
		t.Errorf("expected consecutive_failure_limit 4, got %d", cfg.Engine.ConsecutiveFailureLimit)
	}

	if cfg.Runner.Kind != "claude" {
		t.Errorf("expected runner 'claude', got %q", cfg.Runner.Kind)
	}

	if cfg.Runner.WorkDir != "/tmp/work" {
		t.Errorf("expected workdir '/tmp/work', got %q", cfg.Runner.WorkDir)
	}

	if cfg.Runner.Timeout != 20*time.Minute {
		t.Errorf("expected runner timeout 20m, got %v", cfg.Runner.Timeout)
	}

	if cfg.LLM.Model != "claude-sonnet-4-5" {
		t.Errorf("expected model 'claude-sonnet-4-5', got %q", cfg.LLM.Model)
	}

	if cfg.LLM.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.LLM.APIKey)
	}

	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("expected max_tokens 4096, got %d", cfg.LLM.MaxTokens)
	}

	if cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("expected watch debounce 250ms, got %v", cfg.Watch.Debounce)
	}
}

func TestLoadFromPath_PartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
engine:
  max_retries: 1
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Engine.MaxRetries != 1 {
		t.Errorf("expected max_retries 1, got %d", cfg.Engine.MaxRetries)
	}

	// Everything else keeps its default.
	if cfg.Backlog.Path != "BACKLOG.md" {
		t.Errorf("expected default backlog path, got %q", cfg.Backlog.Path)
	}

	if cfg.Engine.ConsecutiveFailureLimit != 2 {
		t.Errorf("expected default consecutive_failure_limit 2, got %d", cfg.Engine.ConsecutiveFailureLimit)
	}

	if cfg.Runner.Kind != "command" {
		t.Errorf("expected default runner 'command', got %q", cfg.Runner.Kind)
	}
}

func TestLoadFromPath_ExpandsAPIKey(t *testing.T) {
	os.Setenv("BACKRUN_TEST_KEY", "sk-from-env")
	defer os.Unsetenv("BACKRUN_TEST_KEY")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
llm:
  api_key: ${BACKRUN_TEST_KEY}
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("expected api_key 'sk-from-env', got %q", cfg.LLM.APIKey)
	}
}

func TestExpandEnv(t *testing.T) {
	// Set environment variable
	os.Setenv("TEST_VAR", "expanded-value")
	defer os.Unsetenv("TEST_VAR")

	result := expandEnv("${TEST_VAR}")
	if result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	result = expandEnv("prefix-${TEST_VAR}-suffix")
	if result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	dir := getUserConfigDir()
	expected := "/custom/config/backrun"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}
