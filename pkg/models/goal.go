package models

import "time"

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	GoalPending  GoalStatus = "pending"
	GoalPlanning GoalStatus = "planning"
	GoalReady    GoalStatus = "ready"
	GoalRunning  GoalStatus = "running"
	GoalComplete GoalStatus = "complete"
	GoalFailed   GoalStatus = "failed"
)

// ActionStatus is the lifecycle state of an Action.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionRunning   ActionStatus = "running"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// Goal is the unit the supervisor loop (C6) drives to completion. Goals and
// their actions live in a store external to the core; the core only reads
// and mutates them through the narrow GoalStore facade.
type Goal struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    GoalStatus `json:"status"`
	Actions   []Action   `json:"actions"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Action is one step of a Goal's plan, optionally bound to a WorkItem once
// the supervisor enqueues it for execution.
type Action struct {
	ID         string       `json:"id"`
	GoalID     string       `json:"goal_id"`
	Status     ActionStatus `json:"status"`
	Queue      string       `json:"queue"`
	Payload    string       `json:"payload"`
	WorkItemID string       `json:"work_item_id,omitempty"`
	Result     string       `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
