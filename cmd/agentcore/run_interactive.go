package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/eventpipe"
	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/internal/tools"
	"github.com/agentcore/agentcore/internal/tools/subagent"
)

// runInteractive drives a REPL: one line of stdin becomes one
// TurnExecutor-driven turn, Ctrl+C interrupts the in-flight turn rather
// than killing the process (spec §4.3's cooperative-cancellation contract;
// the terminal rendering itself is out of scope, this is the plain
// functional loop underneath it).
func runInteractive(ctx context.Context, opts *cliOptions) error {
	a, err := bootstrap(opts)
	if err != nil {
		return err
	}
	provider, err := a.provider()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer cancel()

	pipe, err := eventpipe.New()
	if err != nil {
		return fmt.Errorf("agentcore: open event pipe: %w", err)
	}
	defer pipe.Close()

	prompter := newStdinPrompter()
	gate := a.gate(opts, prompter)

	registry := agent.NewToolRegistry()
	if err := registerShellTool(registry); err != nil {
		return err
	}
	binPath := a.cfg.Tools.SubAgent.BinaryPath
	if binPath == "" {
		if self, execErr := os.Executable(); execErr == nil {
			binPath = self
		}
	}
	m := metrics.New(nil)
	subMgr := subagent.NewManager(binPath, a.cfg.Tools.SubAgent.MaxActive, prompter, pipe, a.log)
	subMgr.Metrics = m
	if err := subagent.RegisterTools(registry, subMgr); err != nil {
		return err
	}

	dispatcher := tools.NewDispatcher(registry, gate, subMgr, pipe, a.log)
	dispatcher.Metrics = m

	session := agent.NewSession("interactive", provider, registry, dispatcher, nil, a.log)
	session.Config = a.providerConfig()
	session.SetNotifier(pipe)

	executor := agent.NewTurnExecutor(session, pipe, a.log)
	defer executor.Destroy()

	interruptCh := make(chan os.Signal, 1)
	signal.Notify(interruptCh, syscall.SIGINT)
	defer signal.Stop(interruptCh)

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("agentcore interactive session. Ctrl+C interrupts a turn, Ctrl+D exits.")

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Print("> ")
		line, readErr := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if runErr := runInteractiveTurn(ctx, executor, session, line, interruptCh); runErr != nil {
				return runErr
			}
		}
		if readErr != nil {
			return nil
		}
	}
}

// runInteractiveTurn starts one turn and blocks until it finishes, an
// interrupt signal cancels it, or the session's own context is done.
func runInteractiveTurn(ctx context.Context, executor *agent.TurnExecutor, session *agent.Session, text string, interruptCh <-chan os.Signal) error {
	if err := executor.Start(ctx, text, agent.ProcessOptions{}); err != nil {
		fmt.Println("error:", err)
		return nil
	}

	done := make(chan struct{})
	go func() {
		executor.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-interruptCh:
		fmt.Println("\ninterrupting turn...")
		executor.Cancel()
		<-done
	case <-ctx.Done():
		executor.Cancel()
		<-done
		return ctx.Err()
	}

	code, errMsg := executor.Result()
	switch {
	case errMsg != "":
		fmt.Println("error:", errMsg)
	case code == agent.ResultCancelled:
		fmt.Println("(interrupted)")
	default:
		fmt.Println(lastAssistantText(session))
	}
	if code == agent.ResultContextExhausted {
		fmt.Println("context window exhausted; restart the session to continue")
		return newExitError(-3, nil)
	}
	return nil
}
