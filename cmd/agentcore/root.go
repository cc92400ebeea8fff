package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// cliOptions captures the full CLI surface from spec §6 in one struct,
// bound directly to cobra flags; each run_*.go mode handler reads only the
// fields its mode actually uses.
type cliOptions struct {
	Home string

	Debug           bool
	JSON            bool
	NoStream        bool
	Yolo            bool
	NoAutoMessages  bool
	Allow           []string
	AllowCategory   []string
	Model           string
	Mode            string
	GoalID          string
	Phase           string
	Queue           string
	Task            string
	Context         string
}

func buildRootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore - a multi-process LLM agent execution core",
		Long: `agentcore runs one agent session per process, in one of five modes:

  interactive  a REPL session driven by a human at a terminal
  single-shot  one prompt, one turn loop, then exit (also the sub-agent child entrypoint)
  background   a detached session driven over the event pipe, no terminal attached
  worker       claims and processes items from a named work queue until idle
  supervisor   drives a goal to completion via the goap_* planning tools

Select a mode with --mode; each mode wires only the collaborators it needs.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatchMode(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Home, "home", "", "agentcore home directory (default: $AGENTCORE_HOME or ~/.agentcore)")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "enable debug logging")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "emit structured JSON logs instead of text")
	cmd.Flags().BoolVar(&opts.NoStream, "no-stream", false, "accepted and ignored: no mode reads it (replies are printed once per turn)")
	cmd.Flags().BoolVar(&opts.Yolo, "yolo", false, "bypass the approval gate for every tool call")
	cmd.Flags().BoolVar(&opts.NoAutoMessages, "no-auto-messages", false, "accepted and ignored: no mode reads it")
	cmd.Flags().StringArrayVar(&opts.Allow, "allow", nil, "allow a tool call matching tool:pattern (repeatable)")
	cmd.Flags().StringArrayVar(&opts.AllowCategory, "allow-category", nil, "allow every tool in a category or group:name (repeatable)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "model id or tier override")
	cmd.Flags().StringVar(&opts.Mode, "mode", "interactive", "interactive|single-shot|background|worker|supervisor")
	cmd.Flags().StringVar(&opts.GoalID, "goal-id", "", "goal id (supervisor mode; generated if omitted)")
	cmd.Flags().StringVar(&opts.Phase, "phase", "", "plan|execute; accepted and ignored: the supervisor does not read it")
	cmd.Flags().StringVar(&opts.Queue, "queue", "default", "work queue name (worker mode)")
	cmd.Flags().StringVar(&opts.Task, "task", "", "task text (single-shot, background and supervisor modes)")
	cmd.Flags().StringVar(&opts.Context, "context", "", "additional context text (single-shot mode)")

	return cmd
}

func dispatchMode(cmd *cobra.Command, opts *cliOptions) error {
	ctx := cmd.Context()
	switch strings.ToLower(opts.Mode) {
	case "interactive":
		return runInteractive(ctx, opts)
	case "single-shot":
		return runSingleShot(ctx, opts)
	case "background":
		return runBackground(ctx, opts)
	case "worker":
		return runWorker(ctx, opts)
	case "supervisor":
		return runSupervisor(ctx, opts)
	default:
		return fmt.Errorf("agentcore: unknown --mode %q", opts.Mode)
	}
}
