package main

import (
	"fmt"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/tools"
	toolexec "github.com/agentcore/agentcore/internal/tools/exec"
	"github.com/agentcore/agentcore/internal/tools/subagent"
	"github.com/agentcore/agentcore/pkg/models"
)

// registerShellTool adds shell_execute (spec §4.4 step 5) to registry. Every
// mode registers it; the approval gate, not the registry, is what decides
// whether a given session may actually invoke it.
func registerShellTool(registry *agent.ToolRegistry) error {
	if err := registry.Register(toolexec.Tool()); err != nil {
		return fmt.Errorf("agentcore: register shell tool: %w", err)
	}
	return nil
}

// subAgentSpawner adapts a possibly-nil *subagent.Manager to the
// tools.SubAgentSpawner interface. A typed nil *subagent.Manager stored
// directly in Dispatcher.SubAgent would compare != nil as an interface, so
// every mode that may be IS_SUBAGENT=1 routes its manager through this.
func subAgentSpawner(m *subagent.Manager) tools.SubAgentSpawner {
	if m == nil {
		return nil
	}
	return m
}

// lastAssistantText returns the most recent assistant message's content,
// printed as the reply by the single-shot and interactive modes.
func lastAssistantText(session *agent.Session) string {
	history := session.History()
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant {
			return history[i].Content
		}
	}
	return ""
}
