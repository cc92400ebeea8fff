package subagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentcore/agentcore/internal/agent"
)

// spawnCategory groups subagent_spawn/subagent_status for the approval
// gate's category allowlist ("--allow-category subagent" / "group:subagent").
const spawnCategory agent.ApprovalCategory = "subagent"

// RegisterTools adds subagent_spawn and subagent_status to registry. Both
// must be registered even though Dispatcher intercepts subagent_spawn by
// name before ever calling its handler (spec §4.4 step 6): the registry
// entry is what supplies the schema the dispatcher validates arguments against
// and the catalog entry the provider sees.
func RegisterTools(registry *agent.ToolRegistry, manager *Manager) error {
	tools := []*agent.RegisteredTool{
		spawnTool(),
		statusTool(manager),
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("subagent: register %s: %w", t.Name, err)
		}
	}
	return nil
}

// spawnTool's handler is unreachable in normal operation: Dispatch special-
// cases this tool name ahead of execute. It still needs a non-nil Handler
// so a direct agent.ToolRegistry.Dispatch (bypassing tools.Dispatcher, as a
// test harness might) fails loudly instead of panicking on a nil call.
func spawnTool() *agent.RegisteredTool {
	return &agent.RegisteredTool{
		Name:        "subagent_spawn",
		Description: "Spawn a sub-agent child process to work on a delegated task. Does not wait; poll subagent_status for its outcome.",
		Category:    spawnCategory,
		Schema: json.RawMessage(`{
			"type":"object",
			"properties":{
				"task":{"type":"string"},
				"context":{"type":"string"}
			},
			"required":["task"]
		}`),
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			return nil, fmt.Errorf("subagent_spawn: must be dispatched through tools.Dispatcher, not invoked directly")
		},
	}
}

func statusTool(manager *Manager) *agent.RegisteredTool {
	return &agent.RegisteredTool{
		Name:        "subagent_status",
		Description: "Query a previously spawned sub-agent's current status and, once terminal, its output.",
		Category:    spawnCategory,
		Schema: json.RawMessage(`{
			"type":"object",
			"properties":{"id":{"type":"string"}},
			"required":["id"]
		}`),
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			var args struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, err
			}
			sub, ok := manager.Get(args.ID)
			if !ok {
				return &agent.ToolResult{Content: fmt.Sprintf("unknown sub-agent %q", args.ID), IsError: true}, nil
			}
			out, err := json.Marshal(sub)
			if err != nil {
				return nil, err
			}
			return &agent.ToolResult{Content: string(out)}, nil
		},
	}
}
