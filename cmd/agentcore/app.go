package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentcore/agentcore/internal/config"
	"github.com/agentcore/agentcore/internal/providers/anthropic"
	"github.com/agentcore/agentcore/internal/tools/policy"
	"github.com/agentcore/agentcore/pkg/models"
)

// app bundles the collaborators every mode builds the same way: config,
// logger, LLM provider, and the approval gate's rate limiter. Each mode
// constructs its own Gate (the Prompter differs per mode) and its own
// agent.Session/Services on top of this.
type app struct {
	home string
	cfg  *config.Config
	log  *slog.Logger
}

// resolveHome honors --home, then AGENTCORE_HOME, then ~/.agentcore,
// mirroring the teacher's <APP>_HOME/--profile resolution order.
func resolveHome(opts *cliOptions) (string, error) {
	if strings.TrimSpace(opts.Home) != "" {
		return opts.Home, nil
	}
	if v := strings.TrimSpace(os.Getenv("AGENTCORE_HOME")); v != "" {
		return v, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("agentcore: resolve home: %w", err)
	}
	return filepath.Join(dir, ".agentcore"), nil
}

// bootstrap loads config, builds the base logger, and applies the handful
// of CLI overrides common to every mode (--debug, --json, --model).
func bootstrap(opts *cliOptions) (*app, error) {
	home, err := resolveHome(opts)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(home)
	if err != nil {
		return nil, fmt.Errorf("agentcore: load config: %w", err)
	}

	if opts.Debug {
		cfg.Logging.Level = "debug"
	}
	if opts.JSON {
		cfg.Logging.Format = "json"
	}
	if strings.TrimSpace(opts.Model) != "" {
		cfg.Provider.DefaultModel = opts.Model
	}

	log := cfg.Logging.NewLogger(os.Stderr)
	return &app{home: home, cfg: cfg, log: log}, nil
}

// provider builds the one LLM provider this core knows how to talk to.
// Swapping providers is a config.ProviderConfig.Name switch the core leaves
// for a future provider package to add; today only "anthropic" is wired.
func (a *app) provider() (*anthropic.Provider, error) {
	if a.cfg.Provider.Name != "" && a.cfg.Provider.Name != "anthropic" {
		return nil, fmt.Errorf("agentcore: unsupported provider %q", a.cfg.Provider.Name)
	}
	return anthropic.New(anthropic.Config{
		APIKey:       a.cfg.Provider.APIKey,
		BaseURL:      a.cfg.Provider.BaseURL,
		DefaultModel: a.cfg.Provider.DefaultModel,
	})
}

// providerConfig renders the agent.Session's wire-facing model settings
// from the loaded config.
func (a *app) providerConfig() models.ProviderConfig {
	return models.ProviderConfig{
		Model:     a.cfg.Provider.DefaultModel,
		MaxTokens: a.cfg.Provider.MaxTokens,
	}
}

// rateLimiter resolves tools.rate_limit.policy to one of the three backoff
// presets (spec §4.4 step 4; validated already by config.Load, and the
// default branch serves the "default" policy).
func (a *app) rateLimiter() *policy.RateLimiter {
	var bp policy.BackoffPolicy
	switch a.cfg.Tools.RateLimit.Policy {
	case "aggressive":
		bp = policy.AggressiveBackoffPolicy()
	case "conservative":
		bp = policy.ConservativeBackoffPolicy()
	default:
		bp = policy.DefaultBackoffPolicy()
	}
	return policy.NewRateLimiter(bp)
}

// gate builds the approval gate for one session: CLI --allow/--allow-category
// entries are layered over config.yaml's, Yolo is CLI-or-config, and
// prompter is the mode-specific last resort (may be nil for modes that run
// a pre-vetted tool set with no human or upstream sub-agent parent to ask).
func (a *app) gate(opts *cliOptions, prompter policy.Prompter) *policy.Gate {
	g := policy.NewGate(a.rateLimiter(), prompter)
	g.Yolo = a.cfg.Tools.Yolo || opts.Yolo

	for _, raw := range append(append([]string{}, a.cfg.Tools.Allow...), opts.Allow...) {
		if entry, ok := parseAllowEntry(raw); ok {
			g.Allow = append(g.Allow, entry)
		}
	}
	for _, category := range append(append([]string{}, a.cfg.Tools.AllowCategory...), opts.AllowCategory...) {
		for _, tool := range policy.ExpandCategory(category, nil) {
			g.Allowed[policy.NormalizeTool(tool)] = true
		}
		g.Allowed[policy.NormalizeTool(category)] = true
	}
	return g
}

// parseAllowEntry splits a "--allow tool:pattern" CLI value. A bare tool
// name with no colon allows every invocation of that tool.
func parseAllowEntry(raw string) (policy.AllowEntry, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return policy.AllowEntry{}, false
	}
	tool, pattern, found := strings.Cut(raw, ":")
	if !found {
		return policy.AllowEntry{Tool: tool, Pattern: ""}, true
	}
	return policy.AllowEntry{Tool: tool, Pattern: pattern}, true
}
