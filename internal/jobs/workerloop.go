package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/pkg/models"
)

// ShutdownPayload is the sentinel work-item payload that tells a worker
// loop to exit after acknowledging it, rather than process it as a turn
// (spec §4.5, "or on receiving a shutdown message").
const ShutdownPayload = "__shutdown__"

// DefaultPollInterval is how often a worker with no claimable item checks
// the queue again before its idle timer elapses.
const DefaultPollInterval = 250 * time.Millisecond

// WorkerLoop is the child process's own Session loop: it claims items from
// one named queue, feeds each as a synthetic user message into its Session,
// and records the outcome back on the queue (spec §4.5 "Worker lifecycle").
// It is distinct from WorkerManager, which is the parent-side spawn/track
// API; WorkerLoop is what main() runs inside the spawned child.
type WorkerLoop struct {
	Store        Store
	Session      *agent.Session
	Queue        string
	WorkerID     string
	IdleTimeout  time.Duration
	PollInterval time.Duration
	log          *slog.Logger
	// Metrics is nil-safe; set it after construction to record queue depth
	// and work-item outcomes (spec §11 domain stack, prometheus/client_golang).
	Metrics *metrics.Registry
}

// NewWorkerLoop builds a loop with spec-default idle timeout and poll
// interval; override the fields directly for tests.
func NewWorkerLoop(store Store, session *agent.Session, queue, workerID string, log *slog.Logger) *WorkerLoop {
	if log == nil {
		log = slog.Default()
	}
	return &WorkerLoop{
		Store:        store,
		Session:      session,
		Queue:        queue,
		WorkerID:     workerID,
		IdleTimeout:  DefaultIdleTimeout,
		PollInterval: DefaultPollInterval,
		log:          log,
	}
}

// Run claims and processes items until ctx is cancelled, a shutdown item is
// claimed, or no item has been claimable for IdleTimeout.
func (w *WorkerLoop) Run(ctx context.Context) error {
	idleTimeout := w.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	pollInterval := w.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	lastWork := time.Now()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.reportQueueDepth(ctx)

		item, err := w.Store.Claim(ctx, w.Queue, w.WorkerID)
		if err != nil {
			return err
		}
		if item == nil {
			if time.Since(lastWork) >= idleTimeout {
				w.log.Info("worker loop: idle timeout, exiting", "queue", w.Queue)
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}
		lastWork = time.Now()

		if item.Payload == ShutdownPayload {
			_ = w.Store.Complete(ctx, item.ID, "shutdown acknowledged")
			return nil
		}

		code, procErr := w.Session.Process(ctx, item.Payload, agent.ProcessOptions{}, nil)
		switch {
		case procErr != nil:
			_ = w.Store.Fail(ctx, item.ID, procErr.Error())
			w.recordOutcome("failed")
		case code == agent.ResultOK:
			_ = w.Store.Complete(ctx, item.ID, renderHistoryTail(w.Session))
			w.recordOutcome("completed")
		default:
			_ = w.Store.Fail(ctx, item.ID, code.String())
			w.recordOutcome("failed")
		}
	}
}

func (w *WorkerLoop) reportQueueDepth(ctx context.Context) {
	if w.Metrics == nil {
		return
	}
	items, err := w.Store.List(ctx, w.Queue)
	if err != nil {
		return
	}
	pending := 0
	for _, item := range items {
		if item.Status == models.WorkPending {
			pending++
		}
	}
	w.Metrics.SetQueueDepth(w.Queue, pending)
}

func (w *WorkerLoop) recordOutcome(outcome string) {
	if w.Metrics != nil {
		w.Metrics.RecordWorkItem(w.Queue, outcome)
	}
}

// renderHistoryTail returns the assistant's final message content for this
// turn, used as the work item's recorded result.
func renderHistoryTail(session *agent.Session) string {
	history := session.History()
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Content
}
