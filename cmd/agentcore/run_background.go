package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/eventpipe"
	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/internal/tools"
	"github.com/agentcore/agentcore/internal/tools/subagent"
)

// backgroundRequest is one line of the newline-delimited JSON command
// stream background mode reads from stdin in place of an interactive
// terminal prompt.
type backgroundRequest struct {
	Text string `json:"text"`
}

// runBackground drives a session with no terminal attached: turns arrive
// as newline-delimited JSON on stdin, completion/error/interrupt bytes are
// written to this process's own event pipe (its read end is not handed to
// any other process), and a loopback HTTP listener exposes Prometheus metrics (spec
// §6's event-pipe byte contract; metrics per SPEC_FULL §11). With no
// terminal, there is nobody to answer an approval prompt, so the gate runs
// with a nil Prompter - only --yolo, --allow, and --allow-category entries
// can let a call through.
func runBackground(ctx context.Context, opts *cliOptions) error {
	a, err := bootstrap(opts)
	if err != nil {
		return err
	}
	provider, err := a.provider()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipe, err := eventpipe.New()
	if err != nil {
		return fmt.Errorf("agentcore: open event pipe: %w", err)
	}
	defer pipe.Close()

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
	go func() {
		if serveErr := httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			a.log.Warn("background: metrics server stopped", "error", serveErr)
		}
	}()
	defer httpServer.Close()
	a.log.Info("background mode metrics listening", "addr", listener.Addr().String())

	gate := a.gate(opts, nil)

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
	subMgr := subagent.NewManager(binPath, a.cfg.Tools.SubAgent.MaxActive, nil, pipe, a.log)
	subMgr.Metrics = m
	if err := subagent.RegisterTools(registry, subMgr); err != nil {
		return err
	}

	dispatcher := tools.NewDispatcher(registry, gate, subMgr, pipe, a.log)
	dispatcher.Metrics = m

	session := agent.NewSession("background", provider, registry, dispatcher, nil, a.log)
	session.Config = a.providerConfig()
	session.SetNotifier(pipe)

	executor := agent.NewTurnExecutor(session, pipe, a.log)
	defer executor.Destroy()

	if opts.Task != "" {
		if err := runBackgroundTurn(ctx, executor, m, opts.Task); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		var req backgroundRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			a.log.Warn("background: malformed command line", "error", err)
			continue
		}
		if req.Text == "" {
			continue
		}
		if err := runBackgroundTurn(ctx, executor, m, req.Text); err != nil {
			return err
		}
	}
	return nil
}

func runBackgroundTurn(ctx context.Context, executor *agent.TurnExecutor, m *metrics.Registry, text string) error {
	start := time.Now()
	if err := executor.Start(ctx, text, agent.ProcessOptions{}); err != nil {
		return fmt.Errorf("agentcore: start turn: %w", err)
	}
	executor.Wait()
	code, errMsg := executor.Result()
	m.RecordTurn("background", code.String(), time.Since(start).Seconds())
	if errMsg != "" {
		return fmt.Errorf("agentcore: background turn failed: %s", errMsg)
	}
	if code == agent.ResultContextExhausted {
		return newExitError(-3, nil)
	}
	return nil
}
