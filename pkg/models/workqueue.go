package models

import "time"

// WorkStatus is the lifecycle state of a WorkItem.
type WorkStatus string

const (
	WorkPending   WorkStatus = "pending"
	WorkRunning   WorkStatus = "running"
	WorkCompleted WorkStatus = "completed"
	WorkFailed    WorkStatus = "failed"
)

// WorkItem is one unit of work on a named queue. A Pending item may be
// claimed by at most one worker at a time; the claim transition is
// Pending->Running with Owner set, performed atomically by the backing
// store (see internal/jobs.Store.Claim).
type WorkItem struct {
	ID          string     `json:"id"`
	Queue       string     `json:"queue"`
	Payload     string     `json:"payload"`
	Status      WorkStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Owner       string     `json:"owner,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// WorkerStatus is the lifecycle state of a WorkerHandle.
type WorkerStatus string

const (
	WorkerRunning   WorkerStatus = "running"
	WorkerCompleted WorkerStatus = "completed"
	WorkerFailed    WorkerStatus = "failed"
	WorkerTimedOut  WorkerStatus = "timed_out"
)

// WorkerHandle tracks one child worker process bound to a queue.
type WorkerHandle struct {
	ID          string       `json:"id"`
	PID         int          `json:"pid"`
	Queue       string       `json:"queue"`
	Status      WorkerStatus `json:"status"`
	SpawnedAt   time.Time    `json:"spawned_at"`
	LastLiveAt  time.Time    `json:"last_live_at"`
	Output      string       `json:"output,omitempty"`
}
