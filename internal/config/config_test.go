package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeHome(t *testing.T, yamlBody string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir
}

func TestLoadMissingConfigFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.Name != "anthropic" {
		t.Fatalf("Provider.Name = %q, want %q", cfg.Provider.Name, "anthropic")
	}
	if cfg.Tools.MaxToolRounds != 20 {
		t.Fatalf("Tools.MaxToolRounds = %d, want 20", cfg.Tools.MaxToolRounds)
	}
	if cfg.Tools.SubAgent.MaxActive != 20 {
		t.Fatalf("Tools.SubAgent.MaxActive = %d, want 20", cfg.Tools.SubAgent.MaxActive)
	}
	if cfg.Supervisor.Reprompt != 10*time.Second {
		t.Fatalf("Supervisor.Reprompt = %v, want %v", cfg.Supervisor.Reprompt, 10*time.Second)
	}
	if cfg.Logging.Format != "text" {
		t.Fatalf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	home := writeHome(t, "provider:\n  name: anthropic\n  extra_bogus_field: true\n")
	if _, err := Load(home); err == nil {
		t.Fatalf("expected an error for an unknown field")
	}
}

func TestLoadRejectsTrailingDocument(t *testing.T) {
	home := writeHome(t, "provider:\n  name: anthropic\n---\nprovider:\n  name: openai\n")
	if _, err := Load(home); err == nil {
		t.Fatalf("expected an error for a trailing YAML document")
	}
}

func TestLoadAppliesOverridesAndDefaults(t *testing.T) {
	home := writeHome(t, `
provider:
  name: anthropic
  default_model: claude-test
tools:
  yolo: true
  allow:
    - "read_file:*"
  max_tool_rounds: 5
jobs:
  database_path: custom.db
logging:
  format: json
  level: debug
`)
	cfg, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.DefaultModel != "claude-test" {
		t.Fatalf("Provider.DefaultModel = %q, want %q", cfg.Provider.DefaultModel, "claude-test")
	}
	if !cfg.Tools.Yolo {
		t.Fatalf("Tools.Yolo = false, want true")
	}
	if want := []string{"read_file:*"}; !reflect.DeepEqual(cfg.Tools.Allow, want) {
		t.Fatalf("Tools.Allow = %v, want %v", cfg.Tools.Allow, want)
	}
	if cfg.Tools.MaxToolRounds != 5 {
		t.Fatalf("Tools.MaxToolRounds = %d, want 5", cfg.Tools.MaxToolRounds)
	}
	if cfg.Jobs.DatabasePath != "custom.db" {
		t.Fatalf("Jobs.DatabasePath = %q, want %q", cfg.Jobs.DatabasePath, "custom.db")
	}
	if cfg.Jobs.MaxAttempts != 3 { // default, not overridden
		t.Fatalf("Jobs.MaxAttempts = %d, want 3", cfg.Jobs.MaxAttempts)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoadValidatesSubAgentMaxActive(t *testing.T) {
	home := writeHome(t, "tools:\n  subagent:\n    max_active: 99\n")
	_, err := Load(home)
	if err == nil {
		t.Fatalf("expected an error for an out-of-range max_active")
	}
	if !strings.Contains(err.Error(), "max_active") {
		t.Fatalf("err = %q, want it to contain %q", err.Error(), "max_active")
	}
}

func TestLoadValidatesRateLimitPolicy(t *testing.T) {
	home := writeHome(t, "tools:\n  rate_limit:\n    policy: nonsense\n")
	_, err := Load(home)
	if err == nil {
		t.Fatalf("expected an error for an invalid rate_limit.policy")
	}
	if !strings.Contains(err.Error(), "rate_limit.policy") {
		t.Fatalf("err = %q, want it to contain %q", err.Error(), "rate_limit.policy")
	}
}

func TestLoadValidatesLoggingFormat(t *testing.T) {
	home := writeHome(t, "logging:\n  format: xml\n")
	_, err := Load(home)
	if err == nil {
		t.Fatalf("expected an error for an invalid logging.format")
	}
	if !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("err = %q, want it to contain %q", err.Error(), "logging.format")
	}
}

func TestEnvOverrideTakesPriorityOverDefaults(t *testing.T) {
	t.Setenv("AGENTCORE_MODEL", "claude-env-override")
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.DefaultModel != "claude-env-override" {
		t.Fatalf("Provider.DefaultModel = %q, want %q", cfg.Provider.DefaultModel, "claude-env-override")
	}
}

func TestNewLoggerSelectsHandlerByFormat(t *testing.T) {
	textLogger := LoggingConfig{Level: "info", Format: "text"}.NewLogger(nil)
	if textLogger == nil {
		t.Fatalf("expected a non-nil logger for format=text")
	}
	jsonLogger := LoggingConfig{Level: "debug", Format: "json"}.NewLogger(os.Stderr)
	if jsonLogger == nil {
		t.Fatalf("expected a non-nil logger for format=json")
	}
}
