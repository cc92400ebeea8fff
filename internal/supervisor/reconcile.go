package supervisor

import (
	"context"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/jobs"
	"github.com/agentcore/agentcore/pkg/models"
)

// reconcile walks goal's actions and, for each whose bound work item's
// status disagrees with the action's own status, updates the action to
// match (spec §3's recovery invariant, exercised both on supervisor start
// for orphaned actions and on every wake during the event loop). It
// returns whether anything changed, so the caller knows whether to
// persist.
func reconcile(ctx context.Context, work jobs.Store, goal *models.Goal, actions agent.ActionStore) (bool, error) {
	changed := false
	for i := range goal.Actions {
		action := &goal.Actions[i]
		if action.Status != models.ActionRunning {
			continue
		}
		if action.WorkItemID == "" {
			// Running with nothing bound is itself an orphan: reset to
			// Pending so the plan phase can re-enqueue it.
			action.Status = models.ActionPending
			changed = true
			if actions != nil {
				_ = actions.Save(ctx, *action)
			}
			continue
		}

		item, err := work.Get(ctx, action.WorkItemID)
		if err != nil {
			return changed, err
		}
		actionChanged := false
		switch item.Status {
		case models.WorkCompleted:
			action.Status = models.ActionCompleted
			action.Result = item.Result
			actionChanged = true
		case models.WorkFailed:
			action.Status = models.ActionFailed
			action.Error = item.Error
			actionChanged = true
		case models.WorkPending, "":
			// Missing (empty status, zero value) or still Pending: the
			// work was never actually claimed, so the action resets to
			// Pending for a future enqueue.
			action.Status = models.ActionPending
			actionChanged = true
		case models.WorkRunning:
			// A live claim owns it; leave the action Running.
		}
		if actionChanged {
			changed = true
			if actions != nil {
				_ = actions.Save(ctx, *action)
			}
		}
	}
	return changed, nil
}
