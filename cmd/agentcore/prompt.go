package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/agentcore/agentcore/internal/tools/policy"
)

// osStdin is a var, not a literal os.Stdin reference, so tests can swap in
// a pipe without touching the real terminal.
var osStdin *os.File = os.Stdin

// stdinPrompter is the interactive mode's policy.Prompter: it asks the
// terminal in front of the process, the same bufio.Reader-plus-ReadString
// idiom the teacher uses for its setup wizard's prompts.
type stdinPrompter struct {
	reader *bufio.Reader
}

func newStdinPrompter() *stdinPrompter {
	return &stdinPrompter{reader: bufio.NewReader(osStdin)}
}

func (p *stdinPrompter) Prompt(ctx context.Context, sessionID, tool, summary string) (policy.Decision, error) {
	fmt.Printf("approve %s %s? [y/N/a=allow for session]: ", tool, summary)
	text, err := p.reader.ReadString('\n')
	if err != nil {
		return policy.DecisionDeny, fmt.Errorf("agentcore: read approval response: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes":
		return policy.DecisionAllow, nil
	case "a", "always":
		return policy.DecisionAllowSession, nil
	default:
		return policy.DecisionDeny, nil
	}
}
