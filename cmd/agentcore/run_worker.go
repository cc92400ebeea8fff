package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/jobs"
	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/internal/tools"
)

// runWorker is the spawned child entrypoint WorkerManager.Spawn execs:
// it claims items from one queue and feeds each as a turn into its own
// Session until idle or a shutdown item is claimed (spec §4.5). It is a
// pre-vetted tool set with no terminal and no sub-agent spawning of its
// own, so its gate runs with no prompter and no SubAgentSpawner: only
// --yolo/--allow/--allow-category entries can let a call through.
func runWorker(ctx context.Context, opts *cliOptions) error {
	a, err := bootstrap(opts)
	if err != nil {
		return err
	}
	provider, err := a.provider()
	if err != nil {
		return err
	}

	queue := opts.Queue
	if v := os.Getenv(jobs.EnvWorkerQueue); v != "" {
		queue = v
	}
	systemPrompt := os.Getenv(jobs.EnvWorkerSystemPrompt)

	idleTimeout := jobs.DefaultIdleTimeout
	if v := os.Getenv(jobs.EnvWorkerIdleTimeout); v != "" {
		if d, parseErr := time.ParseDuration(v); parseErr == nil {
			idleTimeout = d
		}
	}

	store, err := jobs.NewSQLiteStore(a.cfg.Jobs.DatabasePath, jobs.DefaultSQLiteConfig())
	if err != nil {
		return fmt.Errorf("agentcore: open job store: %w", err)
	}
	defer store.Close()

	gate := a.gate(opts, nil)
	registry := agent.NewToolRegistry()
	if err := registerShellTool(registry); err != nil {
		return err
	}
	m := metrics.New(nil)
	dispatcher := tools.NewDispatcher(registry, gate, nil, nil, a.log)
	dispatcher.Metrics = m

	workerID := uuid.NewString()
	session := agent.NewSession(workerID, provider, registry, dispatcher, nil, a.log)
	session.Config = a.providerConfig()
	if systemPrompt != "" {
		session.SetSystemPrompt(systemPrompt)
	}

	loop := jobs.NewWorkerLoop(store, session, queue, workerID, a.log)
	loop.IdleTimeout = idleTimeout
	loop.Metrics = m

	return loop.Run(ctx)
}
