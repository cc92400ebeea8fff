// Package exec implements the shell_execute tool: a real fork/exec with
// stdout/stderr capture, optional working-directory change, and a
// terminate-then-kill timeout (spec §4.4 step 5, §5 "Timeouts are per-tool").
//
// Command safety validation follows the teacher's internal/exec package:
// the executable-value checks there (control characters, null bytes) are
// reused here for the subset that still applies once a whole command line,
// not a bare executable name, is being run through a shell.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/agentcore/agentcore/internal/agent"
)

// DefaultTimeout and MaxTimeout bound the per-call timeout_seconds argument
// (spec §5: "shell default 30s, configurable up to 300s"). MaxToolTimeout is
// registered as the tool's own EffectiveTimeout so the dispatcher's outer
// deadline never fires before this package's own, finer-grained one does.
const (
	DefaultTimeout  = 30 * time.Second
	MaxTimeout      = 300 * time.Second
	MaxToolTimeout  = MaxTimeout
	killGraceWindow = 100 * time.Millisecond

	// outputCap bounds how much combined stdout/stderr is returned to the
	// model, mirroring the teacher's process_registry tail-capping (it keeps
	// the end of the output, not the start, since that is usually where the
	// useful signal is for a long-running command).
	outputCap = 64 * 1024
)

// Category is the approval-gate category this tool registers under,
// matching policy.DefaultGroups["group:shell"].
const Category agent.ApprovalCategory = "shell"

const shellSchema = `{
	"type": "object",
	"properties": {
		"command": {"type": "string"},
		"working_directory": {"type": "string"},
		"timeout_seconds": {"type": "integer", "minimum": 1, "maximum": 300}
	},
	"required": ["command"]
}`

type shellArgs struct {
	Command          string `json:"command"`
	WorkingDirectory string `json:"working_directory"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
}

// Tool builds the shell_execute RegisteredTool.
func Tool() *agent.RegisteredTool {
	return &agent.RegisteredTool{
		Name:        "shell_execute",
		Description: "Run a shell command, capture its stdout/stderr, and report its exit status.",
		Category:    Category,
		Schema:      json.RawMessage(shellSchema),
		Handler:     handle,
		Timeout:     MaxToolTimeout,
	}
}

func handle(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var args shellArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, fmt.Errorf("shell_execute: %w", err)
	}
	if strings.TrimSpace(args.Command) == "" {
		return nil, fmt.Errorf("shell_execute: command must not be empty")
	}
	if strings.ContainsRune(args.Command, 0) {
		return nil, fmt.Errorf("shell_execute: command contains a null byte")
	}

	timeout := DefaultTimeout
	if args.TimeoutSeconds > 0 {
		timeout = time.Duration(args.TimeoutSeconds) * time.Second
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	return run(ctx, args.Command, args.WorkingDirectory, timeout)
}

// run forks sh -c command in its own process group, so a timeout or
// cancellation can terminate the whole tree it spawned, not just the shell
// itself. It sends SIGTERM, waits killGraceWindow, then SIGKILL if the group
// has not exited (spec §5: "Exceeding a timeout sends terminate, waits a
// grace window (100ms), then kills and reaps").
func run(ctx context.Context, command, dir string, timeout time.Duration) (*agent.ToolResult, error) {
	cmd := exec.Command("sh", "-c", command)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("shell_execute: start: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case waitErr := <-done:
		return resultFromWait(waitErr, &stdout, &stderr, ""), nil
	case <-ctx.Done():
		_ = terminateGroup(cmd, done)
		return resultFromWait(ctx.Err(), &stdout, &stderr, "interrupted"), nil
	case <-timer.C:
		_ = terminateGroup(cmd, done)
		return resultFromWait(context.DeadlineExceeded, &stdout, &stderr, fmt.Sprintf("timed out after %s", timeout)), nil
	}
}

// terminateGroup signals the process group terminate-then-kill and waits
// for cmd.Wait to return, so the child is always reaped (spec §5 "Child
// processes are always reaped").
func terminateGroup(cmd *exec.Cmd, done <-chan error) error {
	pgid := cmd.Process.Pid
	_ = unix.Kill(-pgid, syscall.SIGTERM)
	select {
	case err := <-done:
		return err
	case <-time.After(killGraceWindow):
		_ = unix.Kill(-pgid, syscall.SIGKILL)
		return <-done
	}
}

func resultFromWait(waitErr error, stdout, stderr *bytes.Buffer, note string) *agent.ToolResult {
	var b strings.Builder
	if note != "" {
		fmt.Fprintf(&b, "[%s]\n", note)
	}
	if stdout.Len() > 0 {
		fmt.Fprintf(&b, "--- stdout ---\n%s\n", capTail(stdout.String(), outputCap))
	}
	if stderr.Len() > 0 {
		fmt.Fprintf(&b, "--- stderr ---\n%s\n", capTail(stderr.String(), outputCap))
	}

	isError := note != ""
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		fmt.Fprintf(&b, "exit status %d\n", exitErr.ExitCode())
		isError = true
	} else if waitErr != nil && note == "" {
		fmt.Fprintf(&b, "error: %v\n", waitErr)
		isError = true
	}

	return &agent.ToolResult{Content: b.String(), IsError: isError}
}

// capTail keeps the last max characters of s, matching the teacher's
// process_registry tail-capping: the end of a command's output is usually
// where its result or failure shows up.
func capTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
