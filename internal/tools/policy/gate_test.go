package policy

import (
	"context"
	"testing"
)

func TestGateYoloBypassesEverything(t *testing.T) {
	g := NewGate(nil, nil)
	g.Yolo = true
	d, err := g.Check(context.Background(), "s1", "shell_execute", "", "rm -rf /")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d != DecisionAllow {
		t.Fatalf("decision = %v, want %v", d, DecisionAllow)
	}
}

func TestGateAllowlistPatternMatch(t *testing.T) {
	g := NewGate(nil, nil)
	g.Allow = []AllowEntry{{Tool: "shell_execute", Pattern: "ls*"}}
	d, err := g.Check(context.Background(), "s1", "shell_execute", "", "ls -la")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d != DecisionAllow {
		t.Fatalf("decision = %v, want %v", d, DecisionAllow)
	}

	d, err = g.Check(context.Background(), "s1", "shell_execute", "", "rm -rf /")
	if err == nil {
		t.Fatalf("expected an error falling through to no-prompter deny")
	}
	if d != DecisionDeny {
		t.Fatalf("decision = %v, want %v", d, DecisionDeny)
	}
}

func TestGateCategoryAllow(t *testing.T) {
	g := NewGate(nil, nil)
	g.Allowed["filesystem"] = true
	d, err := g.Check(context.Background(), "s1", "read_file", "filesystem", "read /tmp/x")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d != DecisionAllow {
		t.Fatalf("decision = %v, want %v", d, DecisionAllow)
	}
}

func TestGateDeniesWithoutPrompterAndBacksOff(t *testing.T) {
	limiter := NewRateLimiter(DefaultBackoffPolicy())
	g := NewGate(limiter, nil)

	d, err := g.Check(context.Background(), "s1", "shell_execute", "", "rm -rf /")
	if err == nil {
		t.Fatalf("expected an error with no prompter configured")
	}
	if d != DecisionDeny {
		t.Fatalf("decision = %v, want %v", d, DecisionDeny)
	}

	d, err = g.Check(context.Background(), "s1", "shell_execute", "", "rm -rf /")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d != DecisionBackoff {
		t.Fatalf("decision = %v, want %v", d, DecisionBackoff)
	}
}

func TestGateAllowSessionGrantsFutureCalls(t *testing.T) {
	limiter := NewRateLimiter(DefaultBackoffPolicy())
	prompt := PrompterFunc(func(ctx context.Context, sessionID, tool, summary string) (Decision, error) {
		return DecisionAllowSession, nil
	})
	g := NewGate(limiter, prompt)

	d, err := g.Check(context.Background(), "s1", "shell_execute", "", "ls")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d != DecisionAllow {
		t.Fatalf("decision = %v, want %v", d, DecisionAllow)
	}

	// second call bypasses the prompter entirely via the session grant
	g.prompter = PrompterFunc(func(ctx context.Context, sessionID, tool, summary string) (Decision, error) {
		t.Fatal("prompter should not be consulted after allow_session")
		return DecisionDeny, nil
	})
	d, err = g.Check(context.Background(), "s1", "shell_execute", "", "rm -rf /")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d != DecisionAllow {
		t.Fatalf("decision = %v, want %v", d, DecisionAllow)
	}
}

func TestGateDenyRecordsBackoffThenPromptAgainAfterExpiry(t *testing.T) {
	denyCount := 0
	prompt := PrompterFunc(func(ctx context.Context, sessionID, tool, summary string) (Decision, error) {
		denyCount++
		return DecisionDeny, nil
	})
	limiter := NewRateLimiter(DefaultBackoffPolicy())
	g := NewGate(limiter, prompt)

	for i := 0; i < 3; i++ {
		d, err := g.Check(context.Background(), "s1", "shell_execute", "", "rm -rf /")
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if d != DecisionDeny {
			t.Fatalf("decision = %v, want %v", d, DecisionDeny)
		}
	}
	if denyCount != 3 {
		t.Fatalf("denyCount = %d, want 3", denyCount)
	}

	// within the backoff window, the prompter is not consulted again
	d, err := g.Check(context.Background(), "s1", "shell_execute", "", "rm -rf /")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d != DecisionBackoff {
		t.Fatalf("decision = %v, want %v", d, DecisionBackoff)
	}
	if denyCount != 3 {
		t.Fatalf("denyCount = %d, want 3", denyCount)
	}
}

func TestRateLimiterResetClearsBackoff(t *testing.T) {
	limiter := NewRateLimiter(DefaultBackoffPolicy())
	limiter.RecordDenial("tool:shell_execute")
	if !limiter.InBackoff("tool:shell_execute") {
		t.Fatalf("expected InBackoff=true after RecordDenial")
	}
	limiter.Reset("tool:shell_execute")
	if limiter.InBackoff("tool:shell_execute") {
		t.Fatalf("expected InBackoff=false after Reset")
	}
}
