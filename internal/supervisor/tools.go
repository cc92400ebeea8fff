package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/jobs"
	"github.com/agentcore/agentcore/pkg/models"
)

// GOAPTools binds the set of tool handlers that let the supervisor's LLM
// manipulate goal/action/work-item state (spec §4.6, "GOAP tools"). It
// holds no goal id of its own: every call names the goal explicitly, since
// a single supervisor session may in principle drive more than one goal
// over its lifetime.
type GOAPTools struct {
	Goals   agent.GoalStore
	Actions agent.ActionStore
	Work    jobs.Store
}

// Register adds every GOAP tool to registry under the "goap" approval
// category (the supervisor's own gate, if any, is expected to allow this
// category wholesale - these tools mutate the supervisor's own goal, not
// the outside world).
func (g *GOAPTools) Register(registry *agent.ToolRegistry) error {
	tools := []*agent.RegisteredTool{
		g.addActionTool(),
		g.enqueueActionTool(),
		g.markActionTool(),
		g.checkCompleteTool(),
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("supervisor: register %s: %w", t.Name, err)
		}
	}
	return nil
}

const goapCategory agent.ApprovalCategory = "goap"

func (g *GOAPTools) addActionTool() *agent.RegisteredTool {
	return &agent.RegisteredTool{
		Name:        "goap_add_action",
		Description: "Add a new action to a goal's plan during the Plan phase.",
		Category:    goapCategory,
		Schema: json.RawMessage(`{
			"type":"object",
			"properties":{
				"goal_id":{"type":"string"},
				"queue":{"type":"string"},
				"payload":{"type":"string"}
			},
			"required":["goal_id","queue","payload"]
		}`),
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			var args struct {
				GoalID  string `json:"goal_id"`
				Queue   string `json:"queue"`
				Payload string `json:"payload"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, err
			}
			goal, err := g.Goals.Get(ctx, args.GoalID)
			if err != nil {
				return nil, err
			}
			now := time.Now()
			action := models.Action{
				ID:        uuid.NewString(),
				GoalID:    args.GoalID,
				Status:    models.ActionPending,
				Queue:     args.Queue,
				Payload:   args.Payload,
				CreatedAt: now,
				UpdatedAt: now,
			}
			goal.Status = models.GoalReady
			goal.Actions = append(goal.Actions, action)
			goal.UpdatedAt = now
			if err := g.Goals.Save(ctx, goal); err != nil {
				return nil, err
			}
			if g.Actions != nil {
				_ = g.Actions.Save(ctx, action)
			}
			out, _ := json.Marshal(action)
			return &agent.ToolResult{Content: string(out)}, nil
		},
	}
}

func (g *GOAPTools) enqueueActionTool() *agent.RegisteredTool {
	return &agent.RegisteredTool{
		Name:        "goap_enqueue_action",
		Description: "Enqueue a goal's pending action as a work item and move it to Running.",
		Category:    goapCategory,
		Schema: json.RawMessage(`{
			"type":"object",
			"properties":{
				"goal_id":{"type":"string"},
				"action_id":{"type":"string"}
			},
			"required":["goal_id","action_id"]
		}`),
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			var args struct {
				GoalID   string `json:"goal_id"`
				ActionID string `json:"action_id"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, err
			}
			goal, err := g.Goals.Get(ctx, args.GoalID)
			if err != nil {
				return nil, err
			}
			idx := findAction(goal.Actions, args.ActionID)
			if idx < 0 {
				return &agent.ToolResult{Content: fmt.Sprintf("unknown action %q", args.ActionID), IsError: true}, nil
			}
			action := &goal.Actions[idx]
			if action.Status != models.ActionPending {
				return &agent.ToolResult{Content: fmt.Sprintf("action %q is not pending (status %s)", action.ID, action.Status), IsError: true}, nil
			}
			item, err := g.Work.Enqueue(ctx, action.Queue, action.Payload, 0)
			if err != nil {
				return nil, err
			}
			action.Status = models.ActionRunning
			action.WorkItemID = item.ID
			action.UpdatedAt = time.Now()
			goal.Status = models.GoalRunning
			goal.UpdatedAt = time.Now()
			if err := g.Goals.Save(ctx, goal); err != nil {
				return nil, err
			}
			if g.Actions != nil {
				_ = g.Actions.Save(ctx, *action)
			}
			out, _ := json.Marshal(item)
			return &agent.ToolResult{Content: string(out)}, nil
		},
	}
}

func (g *GOAPTools) markActionTool() *agent.RegisteredTool {
	return &agent.RegisteredTool{
		Name:        "goap_mark_action",
		Description: "Directly set an action's status, for actions with no bound work item.",
		Category:    goapCategory,
		Schema: json.RawMessage(`{
			"type":"object",
			"properties":{
				"goal_id":{"type":"string"},
				"action_id":{"type":"string"},
				"status":{"type":"string","enum":["pending","running","completed","failed"]},
				"error":{"type":"string"}
			},
			"required":["goal_id","action_id","status"]
		}`),
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			var args struct {
				GoalID   string `json:"goal_id"`
				ActionID string `json:"action_id"`
				Status   string `json:"status"`
				Error    string `json:"error"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, err
			}
			goal, err := g.Goals.Get(ctx, args.GoalID)
			if err != nil {
				return nil, err
			}
			idx := findAction(goal.Actions, args.ActionID)
			if idx < 0 {
				return &agent.ToolResult{Content: fmt.Sprintf("unknown action %q", args.ActionID), IsError: true}, nil
			}
			action := &goal.Actions[idx]
			action.Status = models.ActionStatus(args.Status)
			action.Error = args.Error
			action.UpdatedAt = time.Now()
			goal.UpdatedAt = time.Now()
			if err := g.Goals.Save(ctx, goal); err != nil {
				return nil, err
			}
			if g.Actions != nil {
				_ = g.Actions.Save(ctx, *action)
			}
			return &agent.ToolResult{Content: "ok"}, nil
		},
	}
}

func (g *GOAPTools) checkCompleteTool() *agent.RegisteredTool {
	return &agent.RegisteredTool{
		Name:        "goap_check_complete",
		Description: "Check whether every action on a goal is Completed; if so, mark the goal Complete. Reports Failed if any action has failed.",
		Category:    goapCategory,
		Schema: json.RawMessage(`{
			"type":"object",
			"properties":{"goal_id":{"type":"string"}},
			"required":["goal_id"]
		}`),
		Handler: func(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
			var args struct {
				GoalID string `json:"goal_id"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return nil, err
			}
			goal, err := g.Goals.Get(ctx, args.GoalID)
			if err != nil {
				return nil, err
			}
			allComplete := len(goal.Actions) > 0
			anyFailed := false
			for _, a := range goal.Actions {
				switch a.Status {
				case models.ActionFailed:
					anyFailed = true
				case models.ActionCompleted:
				default:
					allComplete = false
				}
			}
			switch {
			case anyFailed:
				goal.Status = models.GoalFailed
			case allComplete:
				goal.Status = models.GoalComplete
			}
			goal.UpdatedAt = time.Now()
			if err := g.Goals.Save(ctx, goal); err != nil {
				return nil, err
			}
			out, _ := json.Marshal(map[string]any{"status": goal.Status, "complete": goal.Status == models.GoalComplete})
			return &agent.ToolResult{Content: string(out)}, nil
		},
	}
}

func findAction(actions []models.Action, id string) int {
	for i := range actions {
		if actions[i].ID == id {
			return i
		}
	}
	return -1
}
