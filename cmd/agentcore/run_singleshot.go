package main

import (
	"context"
	"fmt"
	"os"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/internal/tools"
	"github.com/agentcore/agentcore/internal/tools/policy"
	"github.com/agentcore/agentcore/internal/tools/subagent"
)

// runSingleShot runs one prompt through one bounded turn loop and exits.
// It doubles as the sub-agent child entrypoint: subagent.Manager.Spawn
// execs this binary with --mode single-shot --task ... --context ... and
// IS_SUBAGENT=1/APPROVAL_REQUEST_FD/APPROVAL_REPLY_FD set, which this mode
// detects to route its own approval gate through the parent via the
// approval-proxy channel instead of a terminal (spec §3, §6).
func runSingleShot(ctx context.Context, opts *cliOptions) error {
	if opts.Task == "" {
		return fmt.Errorf("agentcore: --task is required in single-shot mode")
	}

	a, err := bootstrap(opts)
	if err != nil {
		return err
	}
	provider, err := a.provider()
	if err != nil {
		return err
	}

	isSubAgent := os.Getenv(subagent.EnvIsSubAgent) == "1"

	var prompter policy.Prompter
	if isSubAgent {
		client, ok, proxyErr := subagent.NewApprovalProxyClientFromEnv()
		if proxyErr != nil {
			return proxyErr
		}
		if ok {
			defer client.Close()
			prompter = client
		}
	} else {
		prompter = newStdinPrompter()
	}

	registry := agent.NewToolRegistry()
	if err := registerShellTool(registry); err != nil {
		return err
	}

	m := metrics.New(nil)
	var subMgr *subagent.Manager
	if !isSubAgent {
		binPath := a.cfg.Tools.SubAgent.BinaryPath
		if binPath == "" {
			if self, execErr := os.Executable(); execErr == nil {
				binPath = self
			}
		}
		subMgr = subagent.NewManager(binPath, a.cfg.Tools.SubAgent.MaxActive, prompter, nil, a.log)
		subMgr.Metrics = m
		if err := subagent.RegisterTools(registry, subMgr); err != nil {
			return err
		}
	}

	gate := a.gate(opts, prompter)
	dispatcher := tools.NewDispatcher(registry, gate, subAgentSpawner(subMgr), nil, a.log)
	dispatcher.Metrics = m

	session := agent.NewSession("single-shot", provider, registry, dispatcher, nil, a.log)
	session.Config = a.providerConfig()

	text := opts.Task
	if opts.Context != "" {
		text = fmt.Sprintf("%s\n\nContext:\n%s", opts.Task, opts.Context)
	}

	code, procErr := session.Process(ctx, text, agent.ProcessOptions{}, nil)
	if procErr != nil {
		return newExitError(-1, procErr)
	}

	fmt.Println(lastAssistantText(session))

	if code != agent.ResultOK {
		return newExitError(-1, fmt.Errorf("single-shot turn ended with result %s", code))
	}
	return nil
}
