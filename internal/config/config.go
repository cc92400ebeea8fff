// Package config loads and validates the agent execution core's
// configuration: provider/model selection, tool approval defaults, the
// work queue, and the supervisor's reprompt cadence. It mirrors the
// teacher's config package's shape (one struct-of-structs decoded from
// YAML, defaults applied after decode, then validated) without the
// channel/plugin/marketplace sections that belong to a different product.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Tools      ToolsConfig      `yaml:"tools"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ProviderConfig selects and configures the LLM provider.
type ProviderConfig struct {
	Name         string        `yaml:"name"`
	APIKey       string        `yaml:"api_key"`
	DefaultModel string        `yaml:"default_model"`
	BaseURL      string        `yaml:"base_url"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ToolsConfig controls the approval gate and sub-agent spawning.
type ToolsConfig struct {
	Yolo              bool             `yaml:"yolo"`
	Allow             []string         `yaml:"allow"`
	AllowCategory     []string         `yaml:"allow_category"`
	MaxToolRounds     int              `yaml:"max_tool_rounds"`
	SubAgent          SubAgentConfig   `yaml:"subagent"`
	RateLimit         RateLimitConfig  `yaml:"rate_limit"`
}

// SubAgentConfig bounds sub-agent spawning (spec §3, §9).
type SubAgentConfig struct {
	BinaryPath string `yaml:"binary_path"`
	MaxActive  int    `yaml:"max_active"`
}

// RateLimitConfig tunes the approval gate's denial backoff (spec §4.4 step 4).
type RateLimitConfig struct {
	// Policy names a backoff preset: "default", "aggressive", or
	// "conservative" (supplemented from the teacher's internal/backoff
	// package presets; see DESIGN.md).
	Policy string `yaml:"policy"`
}

// JobsConfig configures the work-queue store and worker spawning.
type JobsConfig struct {
	DatabasePath string        `yaml:"database_path"`
	BinaryPath   string        `yaml:"binary_path"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// SupervisorConfig configures the goal-driving event loop (spec §4.6).
type SupervisorConfig struct {
	Reprompt time.Duration `yaml:"reprompt"`
}

// LoggingConfig controls the base slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Load reads home/config.yaml, expands environment variables, applies
// environment overrides and defaults, and validates the result. home may
// not exist yet; a missing config file is not an error, defaults alone are
// returned.
func Load(home string) (*Config, error) {
	var cfg Config

	path := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		decoder := yaml.NewDecoder(strings.NewReader(expanded))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := decoder.Decode(new(struct{})); err != io.EOF {
			return nil, fmt.Errorf("config: %s must be a single YAML document", path)
		}
	case os.IsNotExist(err):
		// No config file yet: proceed with defaults.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "anthropic"
	}
	if cfg.Provider.MaxTokens == 0 {
		cfg.Provider.MaxTokens = 4096
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 60 * time.Second
	}
	if cfg.Tools.MaxToolRounds == 0 {
		cfg.Tools.MaxToolRounds = 20
	}
	if cfg.Tools.SubAgent.MaxActive == 0 {
		cfg.Tools.SubAgent.MaxActive = 20
	}
	if cfg.Tools.RateLimit.Policy == "" {
		cfg.Tools.RateLimit.Policy = "default"
	}
	if cfg.Jobs.DatabasePath == "" {
		cfg.Jobs.DatabasePath = "jobs.db"
	}
	if cfg.Jobs.IdleTimeout == 0 {
		cfg.Jobs.IdleTimeout = 60 * time.Second
	}
	if cfg.Jobs.MaxAttempts == 0 {
		cfg.Jobs.MaxAttempts = 3
	}
	if cfg.Supervisor.Reprompt == 0 {
		cfg.Supervisor.Reprompt = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_PROVIDER_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_MODEL")); v != "" {
		cfg.Provider.DefaultModel = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_MAX_TOOL_ROUNDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tools.MaxToolRounds = n
		}
	}
}

// ValidationError lists every config problem found, instead of failing on
// the first one (matching the teacher's ConfigValidationError).
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if strings.TrimSpace(cfg.Provider.Name) == "" {
		issues = append(issues, "provider.name must be set")
	}
	if cfg.Provider.MaxTokens <= 0 {
		issues = append(issues, "provider.max_tokens must be > 0")
	}
	if cfg.Tools.MaxToolRounds <= 0 {
		issues = append(issues, "tools.max_tool_rounds must be > 0")
	}
	if cfg.Tools.SubAgent.MaxActive <= 0 || cfg.Tools.SubAgent.MaxActive > 20 {
		issues = append(issues, "tools.subagent.max_active must be between 1 and 20")
	}
	switch cfg.Tools.RateLimit.Policy {
	case "default", "aggressive", "conservative":
	default:
		issues = append(issues, `tools.rate_limit.policy must be "default", "aggressive", or "conservative"`)
	}
	if cfg.Jobs.MaxAttempts <= 0 {
		issues = append(issues, "jobs.max_attempts must be > 0")
	}
	if cfg.Jobs.IdleTimeout <= 0 {
		issues = append(issues, "jobs.idle_timeout must be > 0")
	}
	if cfg.Supervisor.Reprompt <= 0 {
		issues = append(issues, "supervisor.reprompt must be > 0")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		issues = append(issues, `logging.format must be "text" or "json"`)
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// NewLogger builds the base logger per LoggingConfig: JSON under
// logging.format=json (the teacher's --json CLI flag forces this), text
// otherwise.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelInfo
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
