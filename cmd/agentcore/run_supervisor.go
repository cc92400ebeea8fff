package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/eventpipe"
	"github.com/agentcore/agentcore/internal/jobs"
	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/internal/supervisor"
	"github.com/agentcore/agentcore/internal/tools"
	"github.com/agentcore/agentcore/internal/tools/subagent"
	"github.com/agentcore/agentcore/pkg/models"
)

// runSupervisor drives one Goal to completion via the goap_* planning
// tools (spec §4.6). Persisting goal/action state across process restarts
// is out of scope (spec §1, "persistent SQLite DAL details"), so every
// invocation seeds a fresh in-memory goal from --goal-id/--task rather than
// resuming one from a prior process's store - a respawn after
// ErrContextExhausted is expected to pass the same --goal-id and --task
// back in so the new process's initial prompt reconstructs the same
// framing, not to find prior state waiting for it.
func runSupervisor(ctx context.Context, opts *cliOptions) error {
	if opts.Task == "" {
		return fmt.Errorf("agentcore: --task is required in supervisor mode")
	}

	a, err := bootstrap(opts)
	if err != nil {
		return err
	}
	provider, err := a.provider()
	if err != nil {
		return err
	}

	goalID := opts.GoalID
	if goalID == "" {
		goalID = uuid.NewString()
	}

	goals := supervisor.NewMemoryGoalStore()
	actions := supervisor.NewMemoryActionStore()
	now := time.Now()
	if err := goals.Save(ctx, models.Goal{
		ID:        goalID,
		Title:     opts.Task,
		Status:    models.GoalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("agentcore: seed goal: %w", err)
	}

	work, err := jobs.NewSQLiteStore(a.cfg.Jobs.DatabasePath, jobs.DefaultSQLiteConfig())
	if err != nil {
		return fmt.Errorf("agentcore: open job store: %w", err)
	}
	defer work.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("agentcore: open metrics listener: %w", err)
	}
	defer listener.Close()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	httpServer := &http.Server{Handler: mux}
	go func() { _ = httpServer.Serve(listener) }()
	defer httpServer.Close()
	a.log.Info("supervisor mode metrics listening", "addr", listener.Addr().String(), "goal_id", goalID)

	events, err := eventpipe.New()
	if err != nil {
		return fmt.Errorf("agentcore: open event pipe: %w", err)
	}
	defer events.Close()

	gate := a.gate(opts, nil)
	// The goap_* tools mutate the supervisor's own goal/action state, not
	// the outside world; they are always allowed regardless of --allow
	// flags (see GOAPTools.Register's doc comment).
	gate.Allowed["goap"] = true
	registry := agent.NewToolRegistry()
	if err := registerShellTool(registry); err != nil {
		return err
	}

	goap := &supervisor.GOAPTools{Goals: goals, Actions: actions, Work: work}
	if err := goap.Register(registry); err != nil {
		return fmt.Errorf("agentcore: register goap tools: %w", err)
	}

	binPath := a.cfg.Tools.SubAgent.BinaryPath
	if binPath == "" {
		if self, execErr := os.Executable(); execErr == nil {
			binPath = self
		}
	}
	subMgr := subagent.NewManager(binPath, a.cfg.Tools.SubAgent.MaxActive, nil, events, a.log)
	subMgr.Metrics = m
	if err := subagent.RegisterTools(registry, subMgr); err != nil {
		return err
	}

	dispatcher := tools.NewDispatcher(registry, gate, subMgr, events, a.log)
	dispatcher.Metrics = m

	session := agent.NewSession(goalID, provider, registry, dispatcher, &agent.Services{Goals: goals, Actions: actions}, a.log)
	session.Config = a.providerConfig()
	session.SetNotifier(events)

	sup := supervisor.NewSupervisor(goalID, session, goals, actions, work, events, a.log)
	sup.Metrics = m
	if a.cfg.Supervisor.Reprompt > 0 {
		sup.Reprompt = a.cfg.Supervisor.Reprompt
	}

	runErr := sup.Run(ctx)
	m.RecordTurn("supervisor", sup.LastResult.String(), 0)

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, supervisor.ErrContextExhausted):
		return newExitError(-3, runErr)
	default:
		return newExitError(-1, runErr)
	}
}
