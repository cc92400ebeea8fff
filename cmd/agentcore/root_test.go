package main

import (
	"testing"
)

func TestBuildRootCmdDefaultsToInteractiveMode(t *testing.T) {
	cmd := buildRootCmd()
	modeFlag := cmd.Flags().Lookup("mode")
	if modeFlag == nil {
		t.Fatal("expected --mode flag to be registered")
	}
	if modeFlag.DefValue != "interactive" {
		t.Fatalf("expected default mode %q, got %q", "interactive", modeFlag.DefValue)
	}
}

func TestBuildRootCmdRegistersFullFlagSurface(t *testing.T) {
	cmd := buildRootCmd()
	for _, name := range []string{
		"home", "debug", "json", "no-stream", "yolo", "no-auto-messages",
		"allow", "allow-category", "model", "mode", "goal-id", "phase",
		"queue", "task", "context",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("expected --%s to be registered", name)
		}
	}
}

func TestDispatchModeRejectsUnknownMode(t *testing.T) {
	cmd := buildRootCmd()
	opts := &cliOptions{Mode: "bogus"}
	if err := dispatchMode(cmd, opts); err == nil {
		t.Fatal("expected an error for an unknown --mode")
	}
}

func TestParseAllowEntry(t *testing.T) {
	entry, ok := parseAllowEntry("shell_execute:git *")
	if !ok {
		t.Fatal("expected ok")
	}
	if entry.Tool != "shell_execute" {
		t.Fatalf("expected tool %q, got %q", "shell_execute", entry.Tool)
	}
	if entry.Pattern != "git *" {
		t.Fatalf("expected pattern %q, got %q", "git *", entry.Pattern)
	}

	entry, ok = parseAllowEntry("read_file")
	if !ok {
		t.Fatal("expected ok")
	}
	if entry.Tool != "read_file" {
		t.Fatalf("expected tool %q, got %q", "read_file", entry.Tool)
	}
	if entry.Pattern != "" {
		t.Fatalf("expected empty pattern, got %q", entry.Pattern)
	}

	if _, ok = parseAllowEntry("   "); ok {
		t.Fatal("expected blank entry to be rejected")
	}
}
