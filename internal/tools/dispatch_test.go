package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/tools/policy"
	"github.com/agentcore/agentcore/pkg/models"
)

func registryWithEchoTool(t *testing.T) *agent.ToolRegistry {
	t.Helper()
	reg := agent.NewToolRegistry()
	if err := reg.Register(&agent.RegisteredTool{
		Name:   "echo",
		Schema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			var args struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(input, &args)
			return &agent.ToolResult{Content: args.Text}, nil
		},
	}); err != nil {
		t.Fatalf("register echo: %v", err)
	}
	if err := reg.Register(&agent.RegisteredTool{
		Name:   "always_fail",
		Schema: json.RawMessage(`{}`),
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			return nil, errors.New("boom")
		},
	}); err != nil {
		t.Fatalf("register always_fail: %v", err)
	}
	if err := reg.Register(&agent.RegisteredTool{
		Name:   subAgentSpawnTool,
		Schema: json.RawMessage(`{}`),
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			t.Fatal("subagent_spawn must never reach the normal handler path")
			return nil, nil
		},
	}); err != nil {
		t.Fatalf("register %s: %v", subAgentSpawnTool, err)
	}
	return reg
}

func yoloGate() *policy.Gate {
	g := policy.NewGate(nil, nil)
	g.Yolo = true
	return g
}

func TestDispatchUnknownTool(t *testing.T) {
	d := NewDispatcher(registryWithEchoTool(t), yoloGate(), nil, nil, nil)
	result := d.Dispatch(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "nope", Input: json.RawMessage(`{}`)})
	if !result.IsError {
		t.Fatalf("expected IsError=true for unknown tool")
	}
	if result.ToolCallID != "c1" {
		t.Fatalf("ToolCallID = %q, want %q", result.ToolCallID, "c1")
	}
}

func TestDispatchBadArguments(t *testing.T) {
	d := NewDispatcher(registryWithEchoTool(t), yoloGate(), nil, nil, nil)
	result := d.Dispatch(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "echo", Input: json.RawMessage(`{}`)})
	if !result.IsError {
		t.Fatalf("expected IsError=true for missing required argument")
	}
}

func TestDispatchSuccess(t *testing.T) {
	d := NewDispatcher(registryWithEchoTool(t), yoloGate(), nil, nil, nil)
	result := d.Dispatch(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "echo", Input: json.RawMessage(`{"text":"hi"}`)})
	if result.IsError {
		t.Fatalf("expected IsError=false, got error content %q", result.Content)
	}
	if result.Content != "hi" {
		t.Fatalf("Content = %q, want %q", result.Content, "hi")
	}
	if result.ToolCallID != "c1" {
		t.Fatalf("ToolCallID = %q, want %q", result.ToolCallID, "c1")
	}
}

func TestDispatchHandlerErrorBecomesExecutionFailure(t *testing.T) {
	d := NewDispatcher(registryWithEchoTool(t), yoloGate(), nil, nil, nil)
	result := d.Dispatch(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "always_fail", Input: json.RawMessage(`{}`)})
	if !result.IsError {
		t.Fatalf("expected IsError=true when handler returns an error")
	}
}

func TestDispatchHandlerPanicIsRecovered(t *testing.T) {
	reg := agent.NewToolRegistry()
	if err := reg.Register(&agent.RegisteredTool{
		Name:   "panics",
		Schema: json.RawMessage(`{}`),
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			panic("kaboom")
		},
	}); err != nil {
		t.Fatalf("register panics: %v", err)
	}
	d := NewDispatcher(reg, yoloGate(), nil, nil, nil)
	result := d.Dispatch(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "panics", Input: json.RawMessage(`{}`)})
	if !result.IsError {
		t.Fatalf("expected IsError=true when handler panics")
	}
}

func TestDispatchDeniedByGate(t *testing.T) {
	g := policy.NewGate(nil, nil) // no yolo, no allowlist, no prompter -> deny
	d := NewDispatcher(registryWithEchoTool(t), g, nil, nil, nil)
	result := d.Dispatch(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "echo", Input: json.RawMessage(`{"text":"hi"}`)})
	if !result.IsError {
		t.Fatalf("expected IsError=true when the gate has no prompter and denies")
	}
}

// transportFailurePrompter simulates a broken approval-proxy channel: every
// call returns policy.DecisionError, matching ApprovalProxyClient.Prompt's
// behavior on a transport/read/malformed-reply failure.
type transportFailurePrompter struct{}

func (transportFailurePrompter) Prompt(ctx context.Context, sessionID, tool, summary string) (policy.Decision, error) {
	return policy.DecisionError, errors.New("approval proxy: write request: broken pipe")
}

func TestDispatchApprovalTransportFailureIsExecutionFailureNotDenied(t *testing.T) {
	g := policy.NewGate(nil, transportFailurePrompter{})
	d := NewDispatcher(registryWithEchoTool(t), g, nil, nil, nil)
	result := d.Dispatch(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "echo", Input: json.RawMessage(`{"text":"hi"}`)})
	if !result.IsError {
		t.Fatalf("expected IsError=true on a broken approval transport")
	}
	if got := result.Content; !strings.Contains(got, string(agent.ToolExecutionFail)) {
		t.Fatalf("Content = %q, want it to classify as %q, not %q", got, agent.ToolExecutionFail, agent.ToolDenied)
	}
	if strings.Contains(result.Content, string(agent.ToolDenied)) {
		t.Fatalf("Content = %q, a broken transport must not be classified as %q", result.Content, agent.ToolDenied)
	}
}

func TestDispatchExecuteTimesOutAndReapsHandler(t *testing.T) {
	started := make(chan struct{})
	reg := agent.NewToolRegistry()
	if err := reg.Register(&agent.RegisteredTool{
		Name:    "slow",
		Schema:  json.RawMessage(`{}`),
		Timeout: 20 * time.Millisecond,
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			close(started)
			<-ctx.Done()
			return &agent.ToolResult{Content: "too late"}, nil
		},
	}); err != nil {
		t.Fatalf("register slow: %v", err)
	}
	d := NewDispatcher(reg, yoloGate(), nil, nil, nil)

	result := d.Dispatch(context.Background(), "s1", models.ToolCall{ID: "c1", Name: "slow", Input: json.RawMessage(`{}`)})
	select {
	case <-started:
	default:
		t.Fatalf("handler never started")
	}
	if !result.IsError {
		t.Fatalf("expected IsError=true on timeout")
	}
	if !strings.Contains(result.Content, string(agent.ToolTimeout)) {
		t.Fatalf("Content = %q, want it to classify as %q", result.Content, agent.ToolTimeout)
	}
}

type fakeSpawner struct {
	sub models.SubAgent
	err error
}

func (f *fakeSpawner) Spawn(ctx context.Context, parentSessionID, task, taskContext string) (models.SubAgent, error) {
	return f.sub, f.err
}

type recordingNotifier struct {
	events []models.AsyncEvent
}

func (n *recordingNotifier) Send(event models.AsyncEvent) error {
	n.events = append(n.events, event)
	return nil
}

func TestDispatchSubAgentSpawnNotifies(t *testing.T) {
	spawner := &fakeSpawner{sub: models.SubAgent{ID: "sub1", Status: models.SubAgentRunning}}
	notifier := &recordingNotifier{}
	d := NewDispatcher(registryWithEchoTool(t), yoloGate(), spawner, notifier, nil)

	result := d.Dispatch(context.Background(), "s1", models.ToolCall{
		ID: "c1", Name: subAgentSpawnTool, Input: json.RawMessage(`{"task":"do it"}`),
	})
	if result.IsError {
		t.Fatalf("expected IsError=false, got error content %q", result.Content)
	}
	if !strings.Contains(result.Content, "sub1") {
		t.Fatalf("Content = %q, want it to contain %q", result.Content, "sub1")
	}
	if len(notifier.events) != 1 || notifier.events[0] != models.EventSubAgentSpawned {
		t.Fatalf("events = %v, want exactly [%v]", notifier.events, models.EventSubAgentSpawned)
	}
}

func TestDispatchSubAgentSpawnRejectedWithoutSpawner(t *testing.T) {
	d := NewDispatcher(registryWithEchoTool(t), yoloGate(), nil, nil, nil)
	result := d.Dispatch(context.Background(), "s1", models.ToolCall{
		ID: "c1", Name: subAgentSpawnTool, Input: json.RawMessage(`{"task":"do it"}`),
	})
	if !result.IsError {
		t.Fatalf("expected IsError=true when no spawner is configured")
	}
}

func TestDispatchSubAgentSpawnCapacityDenied(t *testing.T) {
	spawner := &fakeSpawner{err: agent.ErrSubAgentCapacity}
	d := NewDispatcher(registryWithEchoTool(t), yoloGate(), spawner, nil, nil)
	result := d.Dispatch(context.Background(), "s1", models.ToolCall{
		ID: "c1", Name: subAgentSpawnTool, Input: json.RawMessage(`{"task":"do it"}`),
	})
	if !result.IsError {
		t.Fatalf("expected IsError=true when the spawner reports capacity exceeded")
	}
}
