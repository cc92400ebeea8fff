// Package tools implements C4, the tool dispatch pipeline: lookup,
// argument validation, the approval gate, execution, sub-agent handling,
// and result capture (spec §4.4).
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/internal/tools/policy"
	"github.com/agentcore/agentcore/pkg/models"
)

// SubAgentSpawner is consulted for the subagent_spawn special case (§4.4
// step 6). It lives in internal/tools/subagent; Dispatcher only depends on
// this narrow interface to avoid a package cycle.
type SubAgentSpawner interface {
	Spawn(ctx context.Context, parentSessionID, task, taskContext string) (models.SubAgent, error)
}

// Notifier is the event-pipe write side (C1), used only to emit the 'S'
// byte on a successful sub-agent spawn.
type Notifier interface {
	Send(event models.AsyncEvent) error
}

// Dispatcher is C4. It implements agent.ToolDispatcher.
type Dispatcher struct {
	Registry *agent.ToolRegistry
	Gate     *policy.Gate
	SubAgent SubAgentSpawner // nil if this session may not spawn sub-agents
	Notifier Notifier
	// Metrics is nil-safe; set it after construction to record dispatch
	// outcomes (spec §11 domain stack, prometheus/client_golang).
	Metrics *metrics.Registry
	log     *slog.Logger
}

// NewDispatcher builds a dispatcher. gate and subAgent may be nil: a nil
// gate allows everything (useful for worker/supervisor modes that run
// pre-vetted tool sets); a nil subAgent spawner rejects subagent_spawn
// calls outright (the IS_SUBAGENT=1 no-nested-spawn case, spec §3/§6).
func NewDispatcher(registry *agent.ToolRegistry, gate *policy.Gate, subAgent SubAgentSpawner, notifier Notifier, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{Registry: registry, Gate: gate, SubAgent: subAgent, Notifier: notifier, log: log}
}

const subAgentSpawnTool = "subagent_spawn"

type subAgentSpawnArgs struct {
	Task    string `json:"task"`
	Context string `json:"context"`
}

// Dispatch runs one tool call through the full pipeline. It always returns
// a models.ToolResult; per spec §4.4, no dispatch outcome is ever fatal to
// the turn.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, call models.ToolCall) models.ToolResult {
	// Stage 1: lookup.
	tool, ok := d.Registry.Get(call.Name)
	if !ok {
		return d.fail(call, agent.ToolUnknown, fmt.Errorf("unknown tool %q", call.Name))
	}

	// Stage 2: argument validation (the single JSON decoder, spec §9).
	parsed, err := tool.Validate(call.Input)
	if err != nil {
		return d.fail(call, agent.ToolBadArguments, err)
	}

	// Stage 3+4: approval gate (allowlist -> rate limiter -> user prompt,
	// yolo bypasses).
	decision := policy.DecisionAllow
	if d.Gate != nil {
		summary := summarizeArgs(parsed)
		var gateErr error
		decision, gateErr = d.Gate.Check(ctx, sessionID, tool.Name, string(tool.Category), summary)
		switch decision {
		case policy.DecisionError:
			// A broken approval-proxy transport is not a user denial; it is
			// surfaced as an execution failure so the caller can retry or
			// escalate, rather than silently treated as "not approved".
			d.recordDispatch(tool.Name, decision, "error", 0)
			return d.fail(call, agent.ToolExecutionFail, gateErr)
		case policy.DecisionDeny:
			d.recordDispatch(tool.Name, decision, "denied", 0)
			return d.fail(call, agent.ToolDenied, gateErr)
		case policy.DecisionBackoff:
			d.recordDispatch(tool.Name, decision, "denied", 0)
			return d.fail(call, agent.ToolBackoffActive, gateErr)
		}
	}

	// Stage 6: sub-agent special case pre-empts normal execution.
	if call.Name == subAgentSpawnTool {
		return d.dispatchSubAgentSpawn(ctx, sessionID, call)
	}

	// Stage 5: execution.
	start := time.Now()
	result := d.execute(ctx, call, tool)
	status := "success"
	if result.IsError {
		status = "error"
	}
	d.recordDispatch(tool.Name, decision, status, time.Since(start).Seconds())
	return result
}

// execute runs tool.Handler under its own deadline (spec §4.4 step 5, §5
// "Timeouts are per-tool"). The handler runs in its own goroutine so a
// handler that never honors ctx cancellation cannot block the dispatcher
// past the deadline; its eventual result, if any, is discarded. This
// mirrors the teacher's executeWithTimeout: a buffered result channel with
// a non-blocking send, raced against the deadline context.
func (d *Dispatcher) execute(ctx context.Context, call models.ToolCall, tool *agent.RegisteredTool) models.ToolResult {
	toolCtx, cancel := context.WithTimeout(ctx, tool.EffectiveTimeout())
	defer cancel()

	type outcome struct {
		out *agent.ToolResult
		err error
	}
	resultChan := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				select {
				case resultChan <- outcome{err: fmt.Errorf("tool panicked: %v", r)}:
				default:
				}
			}
		}()
		out, err := tool.Handler(toolCtx, call.Input)
		select {
		case resultChan <- outcome{out: out, err: err}:
		default:
			d.log.Warn("dispatch: tool handler returned after its deadline, result discarded", "tool", tool.Name)
		}
	}()

	select {
	case <-toolCtx.Done():
		kind := agent.ToolTimeout
		if errors.Is(toolCtx.Err(), context.Canceled) {
			kind = agent.ToolInterrupted
		}
		return d.fail(call, kind, toolCtx.Err())
	case res := <-resultChan:
		if res.err != nil {
			kind := agent.ToolExecutionFail
			switch {
			case errors.Is(res.err, context.DeadlineExceeded):
				kind = agent.ToolTimeout
			case errors.Is(res.err, context.Canceled):
				kind = agent.ToolInterrupted
			}
			return d.fail(call, kind, res.err)
		}
		return models.ToolResult{
			ToolCallID:   call.ID,
			Content:      res.out.Content,
			IsError:      res.out.IsError,
			ClearHistory: res.out.ClearHistory,
		}
	}
}

func (d *Dispatcher) recordDispatch(tool string, decision policy.Decision, status string, durationSeconds float64) {
	if d.Metrics != nil {
		d.Metrics.RecordToolDispatch(tool, string(decision), status, durationSeconds)
	}
}

func (d *Dispatcher) dispatchSubAgentSpawn(ctx context.Context, sessionID string, call models.ToolCall) models.ToolResult {
	if d.SubAgent == nil {
		return d.fail(call, agent.ToolExecutionFail, agent.ErrNestedSubAgent)
	}
	var args subAgentSpawnArgs
	if err := json.Unmarshal(call.Input, &args); err != nil {
		return d.fail(call, agent.ToolBadArguments, err)
	}

	sub, err := d.SubAgent.Spawn(ctx, sessionID, args.Task, args.Context)
	if err != nil {
		if errors.Is(err, agent.ErrSubAgentCapacity) {
			return d.fail(call, agent.ToolDenied, err)
		}
		return d.fail(call, agent.ToolExecutionFail, err)
	}

	if d.Notifier != nil {
		if notifyErr := d.Notifier.Send(models.EventSubAgentSpawned); notifyErr != nil {
			d.log.Warn("dispatch: sub-agent spawn notify failed", "error", notifyErr)
		}
	}

	payload, _ := json.Marshal(sub)
	return models.ToolResult{ToolCallID: call.ID, Content: string(payload)}
}

func (d *Dispatcher) fail(call models.ToolCall, kind agent.ToolErrorKind, cause error) models.ToolResult {
	dispatchErr := &agent.DispatchError{Kind: kind, ToolName: call.Name, Cause: cause}
	d.log.Debug("dispatch: tool call failed", "error", dispatchErr)
	return models.ToolResult{ToolCallID: call.ID, Content: dispatchErr.Error(), IsError: true}
}

// summarizeArgs renders parsed tool arguments as a short string for the
// allow-pattern matcher and the approval prompt. Most tools' arguments are
// small JSON objects; this is not a general pretty-printer.
func summarizeArgs(parsed any) string {
	b, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Sprintf("%v", parsed)
	}
	return string(b)
}
