package policy

import (
	"context"
	"fmt"
	"sync"
)

// Decision is the approval gate's verdict for one tool call.
type Decision string

const (
	DecisionAllow Decision = "allow"
	// DecisionAllowSession grants this tool for every remaining call in the
	// requesting session, not just the one being decided.
	DecisionAllowSession Decision = "allow_session"
	DecisionDeny         Decision = "deny"
	DecisionBackoff      Decision = "backoff_active"
	// DecisionError marks a Prompter that could not be reached at all (a
	// broken approval-proxy transport, a malformed reply) as distinct from a
	// genuine user denial: the caller should surface this as an execution
	// failure, not as Denied.
	DecisionError Decision = "error"
)

// AllowEntry is one "--allow tool:pattern" CLI entry (spec §6).
type AllowEntry struct {
	Tool    string
	Pattern string
}

// Prompter is the last-resort collaborator that asks a human (or, for a
// sub-agent, the parent via the approval-proxy channel) whether a call may
// proceed. The gate never talks to a terminal or a pipe directly.
type Prompter interface {
	Prompt(ctx context.Context, sessionID, tool, summary string) (Decision, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, sessionID, tool, summary string) (Decision, error)

func (f PrompterFunc) Prompt(ctx context.Context, sessionID, tool, summary string) (Decision, error) {
	return f(ctx, sessionID, tool, summary)
}

// Gate is C4 step 3's approval gate: a CLI allowlist/category consult, a
// per-key rate limiter, and a last-resort user prompt. Yolo mode bypasses
// all of it.
type Gate struct {
	Yolo     bool
	Allow    []AllowEntry
	Allowed  map[string]bool // categories and tool names granted by --allow-category
	limiter  *RateLimiter
	prompter Prompter

	mu            sync.Mutex
	sessionGrants map[string]map[string]bool // sessionID -> tool -> granted for session
}

// NewGate builds a gate. prompter may be nil only if every call this gate
// will ever see is covered by Allow/Allowed/Yolo.
func NewGate(limiter *RateLimiter, prompter Prompter) *Gate {
	return &Gate{
		Allowed:       make(map[string]bool),
		limiter:       limiter,
		prompter:      prompter,
		sessionGrants: make(map[string]map[string]bool),
	}
}

// Check runs the precedence chain in spec §4.4 step 3: CLI allowlist and
// category tags, then the rate limiter, then the user prompt. category is
// the tool's declared ApprovalCategory; summary is a short human-readable
// rendering of the call's arguments used both for the allow-pattern match
// and for what the prompter shows the user.
func (g *Gate) Check(ctx context.Context, sessionID, tool, category, summary string) (Decision, error) {
	if g.Yolo {
		return DecisionAllow, nil
	}

	if g.sessionGranted(sessionID, tool) {
		return DecisionAllow, nil
	}

	if g.Allowed[NormalizeTool(category)] || g.Allowed[NormalizeTool(tool)] {
		return DecisionAllow, nil
	}
	for _, entry := range g.Allow {
		if NormalizeTool(entry.Tool) == NormalizeTool(tool) && matchToolPattern(entry.Pattern, summary) {
			return DecisionAllow, nil
		}
	}

	key := rateLimiterKey(category, tool)
	if g.limiter != nil && g.limiter.InBackoff(key) {
		return DecisionBackoff, nil
	}

	if g.prompter == nil {
		// No UI available to ask: fall back to deny rather than silently
		// allowing an unreviewed call (spec §9 open question on broken
		// approval channels takes the same side: default to deny).
		if g.limiter != nil {
			g.limiter.RecordDenial(key)
		}
		return DecisionDeny, fmt.Errorf("policy: no prompter configured for tool %q", tool)
	}

	decision, err := g.prompter.Prompt(ctx, sessionID, tool, summary)
	if err != nil {
		if decision == DecisionError {
			// A broken transport, not a user verdict: don't count it against
			// the rate limiter's denial tally, and let the caller classify
			// it as an execution failure rather than Denied.
			return DecisionError, err
		}
		if g.limiter != nil {
			g.limiter.RecordDenial(key)
		}
		return DecisionDeny, err
	}

	switch decision {
	case DecisionAllowSession:
		g.GrantSession(sessionID, tool)
		if g.limiter != nil {
			g.limiter.Reset(key)
		}
		return DecisionAllow, nil
	case DecisionAllow:
		if g.limiter != nil {
			g.limiter.Reset(key)
		}
		return DecisionAllow, nil
	default:
		if g.limiter != nil {
			g.limiter.RecordDenial(key)
		}
		return DecisionDeny, nil
	}
}

// GrantSession records an AllowSession decision: every subsequent call to
// tool in this session bypasses the gate, per spec §8's round-trip property
// ("allow_session cause subsequent calls... to bypass the gate").
func (g *Gate) GrantSession(sessionID, tool string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionGrants[sessionID] == nil {
		g.sessionGrants[sessionID] = make(map[string]bool)
	}
	g.sessionGrants[sessionID][NormalizeTool(tool)] = true
}

func (g *Gate) sessionGranted(sessionID, tool string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	grants := g.sessionGrants[sessionID]
	if grants == nil {
		return false
	}
	return grants[NormalizeTool(tool)]
}

func rateLimiterKey(category, tool string) string {
	if category != "" {
		return "category:" + NormalizeTool(category)
	}
	return "tool:" + NormalizeTool(tool)
}
