package subagent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/tools/policy"
	"github.com/agentcore/agentcore/pkg/models"
)

// The test binary re-execs itself as a fake sub-agent process (the standard
// os/exec helper-process pattern): when SUBAGENT_HELPER_PROCESS=1 is set,
// TestMain runs helperMain instead of the test suite. This lets Spawn's
// child-process and approval-proxy plumbing be exercised without shipping a
// separate fixture binary.
func TestMain(m *testing.M) {
	if os.Getenv("SUBAGENT_HELPER_PROCESS") == "1" {
		helperMain()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func helperMain() {
	client, ok, err := NewApprovalProxyClientFromEnv()
	if !ok || err != nil {
		fmt.Println("no-approval-channel")
		return
	}
	defer client.Close()
	decision, err := client.Prompt(context.Background(), "helper-sub", "shell_execute", "rm -rf /")
	if err != nil {
		fmt.Printf("prompt-error: %v\n", err)
		return
	}
	fmt.Printf("decision=%s\n", decision)
}

func testBinaryManager(t *testing.T, upstream policy.Prompter, max int) *Manager {
	t.Helper()
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	m := NewManager(self, max, upstream, nil, nil)
	return m
}

// withHelperEnv marks the child as the helper process by way of the Cmd's
// env; Manager.Spawn builds the Cmd itself, so the test instead sets the
// env var on the parent process for the duration of the call, which
// os/exec.Command inherits via os.Environ().
func withHelperEnv(t *testing.T, fn func()) {
	t.Helper()
	if err := os.Setenv("SUBAGENT_HELPER_PROCESS", "1"); err != nil {
		t.Fatalf("os.Setenv: %v", err)
	}
	defer os.Unsetenv("SUBAGENT_HELPER_PROCESS")
	fn()
}

func TestSpawnRunsChildAndRecordsCompletion(t *testing.T) {
	prompt := policy.PrompterFunc(func(ctx context.Context, sessionID, tool, summary string) (policy.Decision, error) {
		if tool != "shell_execute" {
			t.Fatalf("tool = %q, want %q", tool, "shell_execute")
		}
		return policy.DecisionAllow, nil
	})
	m := testBinaryManager(t, prompt, 5)

	sub := mustSpawn(t, m)
	if got := m.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1", got)
	}

	waitForCompletion(t, m, sub.ID)
	if got := m.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount = %d, want 0", got)
	}

	got, ok := m.Get(sub.ID)
	if !ok {
		t.Fatalf("Get(%q) not found", sub.ID)
	}
	if !strings.Contains(got.Output, "decision=allow") {
		t.Fatalf("Output = %q, want it to contain %q", got.Output, "decision=allow")
	}
}

func TestSpawnRejectsNestedSubAgent(t *testing.T) {
	if err := os.Setenv(EnvIsSubAgent, "1"); err != nil {
		t.Fatalf("os.Setenv: %v", err)
	}
	defer os.Unsetenv(EnvIsSubAgent)

	m := testBinaryManager(t, nil, 5)
	_, err := m.Spawn(context.Background(), "parent", "task", "")
	if !errors.Is(err, agent.ErrNestedSubAgent) {
		t.Fatalf("err = %v, want %v", err, agent.ErrNestedSubAgent)
	}
}

func TestSpawnRejectsAtCapacity(t *testing.T) {
	m := testBinaryManager(t, policy.PrompterFunc(func(ctx context.Context, sessionID, tool, summary string) (policy.Decision, error) {
		return policy.DecisionAllow, nil
	}), 1)

	sub := mustSpawn(t, m)
	_, err := m.Spawn(context.Background(), "parent", "second", "")
	if !errors.Is(err, agent.ErrSubAgentCapacity) {
		t.Fatalf("err = %v, want %v", err, agent.ErrSubAgentCapacity)
	}

	waitForCompletion(t, m, sub.ID)
}

func TestSpawnDeniedApprovalReachesChild(t *testing.T) {
	prompt := policy.PrompterFunc(func(ctx context.Context, sessionID, tool, summary string) (policy.Decision, error) {
		return policy.DecisionDeny, nil
	})
	m := testBinaryManager(t, prompt, 5)
	sub := mustSpawn(t, m)
	waitForCompletion(t, m, sub.ID)

	got, ok := m.Get(sub.ID)
	if !ok {
		t.Fatalf("Get(%q) not found", sub.ID)
	}
	if !strings.Contains(got.Output, "decision=deny") {
		t.Fatalf("Output = %q, want it to contain %q", got.Output, "decision=deny")
	}
}

func mustSpawn(t *testing.T, m *Manager) models.SubAgent {
	t.Helper()
	var result models.SubAgent
	withHelperEnv(t, func() {
		s, err := m.Spawn(context.Background(), "parent", "investigate", "ctx")
		if err != nil {
			t.Fatalf("Spawn: %v", err)
		}
		result = s
	})
	return result
}

func waitForCompletion(t *testing.T, m *Manager, id string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		got, ok := m.Get(id)
		if !ok {
			t.Fatalf("Get(%q) not found", id)
		}
		if got.Status != models.SubAgentRunning && got.Status != models.SubAgentPending {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("sub-agent %s did not complete in time", id)
		case <-time.After(20 * time.Millisecond):
		}
	}
}
