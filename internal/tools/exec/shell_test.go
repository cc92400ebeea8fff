package exec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestHandleCapturesStdout(t *testing.T) {
	result, err := handle(context.Background(), json.RawMessage(`{"command":"echo hello"}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected IsError=false, got content %q", result.Content)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Fatalf("Content = %q, want it to contain %q", result.Content, "hello")
	}
}

func TestHandleReportsNonZeroExit(t *testing.T) {
	result, err := handle(context.Background(), json.RawMessage(`{"command":"exit 7"}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected IsError=true for a non-zero exit")
	}
	if !strings.Contains(result.Content, "exit status 7") {
		t.Fatalf("Content = %q, want it to contain %q", result.Content, "exit status 7")
	}
}

func TestHandleRejectsEmptyCommand(t *testing.T) {
	if _, err := handle(context.Background(), json.RawMessage(`{"command":"  "}`)); err == nil {
		t.Fatalf("expected an error for an empty command")
	}
}

func TestHandleRespectsWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	input, _ := json.Marshal(shellArgs{Command: "pwd", WorkingDirectory: dir})
	result, err := handle(context.Background(), input)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(result.Content, dir) {
		t.Fatalf("Content = %q, want it to contain %q", result.Content, dir)
	}
}

func TestRunTerminatesOnTimeout(t *testing.T) {
	start := time.Now()
	result, err := run(context.Background(), "sleep 5", "", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("run took %v, want it bounded by the timeout plus grace window", elapsed)
	}
	if !result.IsError {
		t.Fatalf("expected IsError=true on timeout")
	}
	if !strings.Contains(result.Content, "timed out") {
		t.Fatalf("Content = %q, want it to contain %q", result.Content, "timed out")
	}
}

func TestRunTerminatesOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := run(ctx, "sleep 5", "", time.Minute)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected IsError=true on cancellation")
	}
	if !strings.Contains(result.Content, "interrupted") {
		t.Fatalf("Content = %q, want it to contain %q", result.Content, "interrupted")
	}
}

func TestCapTailKeepsOnlyTheEnd(t *testing.T) {
	s := strings.Repeat("a", 10) + strings.Repeat("b", 10)
	got := capTail(s, 10)
	if got != strings.Repeat("b", 10) {
		t.Fatalf("capTail = %q, want the trailing 10 chars", got)
	}
	if capTail("short", 10) != "short" {
		t.Fatalf("capTail should return s unchanged when s is already within the cap")
	}
}
