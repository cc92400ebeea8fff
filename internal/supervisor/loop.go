// Package supervisor implements C6: the goal/plan-execute driver that owns
// a Goal end to end - recovering orphaned actions on start, planning and
// enqueuing work, and waking on either an event-pipe signal or a periodic
// timer to reconcile state and re-prompt its session - until the goal
// reaches Complete or Failed (spec §4.6).
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/agentcore/agentcore/internal/agent"
	"github.com/agentcore/agentcore/internal/eventpipe"
	"github.com/agentcore/agentcore/internal/jobs"
	"github.com/agentcore/agentcore/internal/metrics"
	"github.com/agentcore/agentcore/pkg/models"
)

// DefaultReprompt is how often the supervisor wakes on its own, even absent
// any event-pipe signal, to re-check goal/action state (spec §4.6,
// "periodic timer (10s default)").
const DefaultReprompt = 10 * time.Second

// pollQuantum bounds how long a single unix.Poll call blocks, so the loop
// remains responsive to ctx cancellation without a context-aware poll
// primitive.
const pollQuantum = 200 * time.Millisecond

// ErrContextExhausted is returned by Run when a turn's provider reports its
// context window is full (ResultContextExhausted, spec §6 supervisor exit
// code -3): the caller is expected to respawn the supervisor process with a
// trimmed or summarized context rather than keep prompting the same session.
var ErrContextExhausted = errors.New("supervisor: session reported context exhausted")

// Supervisor drives a single Goal to completion.
type Supervisor struct {
	GoalID   string
	Session  *agent.Session
	Goals    agent.GoalStore
	Actions  agent.ActionStore
	Work     jobs.Store
	Events   *eventpipe.Pipe
	Reprompt time.Duration

	// LastResult is the most recent turn's result code, set by promptOnce;
	// callers use it after Run returns to distinguish a clean goal
	// completion from ErrContextExhausted.
	LastResult agent.ResultCode

	// Metrics is nil-safe; set it after construction to record the goal
	// reaching a terminal state (spec §11 domain stack, prometheus/client_golang).
	Metrics *metrics.Registry

	log *slog.Logger
}

// NewSupervisor wires a Supervisor for goalID. events may be nil, in which
// case the loop wakes on the periodic timer alone.
func NewSupervisor(goalID string, session *agent.Session, goals agent.GoalStore, actions agent.ActionStore, work jobs.Store, events *eventpipe.Pipe, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		GoalID:   goalID,
		Session:  session,
		Goals:    goals,
		Actions:  actions,
		Work:     work,
		Events:   events,
		Reprompt: DefaultReprompt,
		log:      log,
	}
}

// Run drives the goal until it reaches Complete or Failed, ctx is
// cancelled, or an unrecoverable error occurs.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.Reprompt <= 0 {
		s.Reprompt = DefaultReprompt
	}

	goal, err := s.Goals.Get(ctx, s.GoalID)
	if err != nil {
		return fmt.Errorf("supervisor: load goal: %w", err)
	}

	if changed, err := reconcile(ctx, s.Work, &goal, s.Actions); err != nil {
		return fmt.Errorf("supervisor: recover orphans: %w", err)
	} else if changed {
		if err := s.Goals.Save(ctx, goal); err != nil {
			return fmt.Errorf("supervisor: save recovered goal: %w", err)
		}
		s.log.Info("supervisor recovered orphaned actions", "goal_id", goal.ID)
	}

	if done, err := s.promptOnce(ctx, s.initialPrompt(goal)); done || err != nil {
		if err == nil {
			s.recordTerminal(ctx)
		}
		return err
	}

	deadline := time.Now().Add(s.Reprompt)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		woken, err := s.wait(ctx, deadline)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !woken && time.Now().Before(deadline) {
			continue
		}
		deadline = time.Now().Add(s.Reprompt)

		goal, err = s.Goals.Get(ctx, s.GoalID)
		if err != nil {
			return fmt.Errorf("supervisor: reload goal: %w", err)
		}
		changed, err := reconcile(ctx, s.Work, &goal, s.Actions)
		if err != nil {
			return fmt.Errorf("supervisor: reconcile: %w", err)
		}
		if changed {
			if err := s.Goals.Save(ctx, goal); err != nil {
				return fmt.Errorf("supervisor: save reconciled goal: %w", err)
			}
		}
		if goal.Status == models.GoalComplete || goal.Status == models.GoalFailed {
			s.log.Info("supervisor goal reached terminal state", "goal_id", goal.ID, "status", goal.Status)
			s.recordGoalOutcome(goal.Status)
			return nil
		}
		if !changed {
			continue
		}

		if done, err := s.promptOnce(ctx, s.wakePrompt(goal)); done || err != nil {
			if err == nil {
				s.recordTerminal(ctx)
			}
			return err
		}
	}
}

// recordTerminal reloads the goal and records its outcome if it has already
// reached a terminal state; used after promptOnce reports done=true, which
// happens before the periodic loop's own terminal-state check runs.
func (s *Supervisor) recordTerminal(ctx context.Context) {
	if s.Metrics == nil {
		return
	}
	goal, err := s.Goals.Get(ctx, s.GoalID)
	if err != nil {
		return
	}
	s.recordGoalOutcome(goal.Status)
}

func (s *Supervisor) recordGoalOutcome(status models.GoalStatus) {
	if s.Metrics == nil {
		return
	}
	switch status {
	case models.GoalComplete:
		s.Metrics.RecordGoal("complete")
	case models.GoalFailed:
		s.Metrics.RecordGoal("failed")
	}
}

// promptOnce runs one session turn and reports whether the goal is already
// terminal (in which case the caller should stop looping). It returns
// ErrContextExhausted, without touching goal state, if the turn's provider
// reported its context window full.
func (s *Supervisor) promptOnce(ctx context.Context, text string) (bool, error) {
	code, err := s.Session.Process(ctx, text, agent.ProcessOptions{}, nil)
	if err != nil {
		return false, fmt.Errorf("supervisor: session turn: %w", err)
	}
	s.LastResult = code
	if code == agent.ResultContextExhausted {
		return true, ErrContextExhausted
	}
	goal, err := s.Goals.Get(ctx, s.GoalID)
	if err != nil {
		return false, fmt.Errorf("supervisor: reload goal after turn: %w", err)
	}
	return goal.Status == models.GoalComplete || goal.Status == models.GoalFailed, nil
}

func (s *Supervisor) initialPrompt(goal models.Goal) string {
	return fmt.Sprintf(
		"Goal %q (id=%s, status=%s) has %d action(s). Plan remaining work using the goap_* tools, "+
			"enqueue actions that are ready to run, and call goap_check_complete once you believe the goal is done.",
		goal.Title, goal.ID, goal.Status, len(goal.Actions),
	)
}

func (s *Supervisor) wakePrompt(goal models.Goal) string {
	return fmt.Sprintf(
		"Woke to reconcile goal %q (id=%s, status=%s). Some action states changed since the last turn; "+
			"review them with the goap_* tools and decide what to do next.",
		goal.Title, goal.ID, goal.Status,
	)
}

// wait blocks until the event pipe is readable, the deadline passes, or ctx
// is cancelled, whichever comes first. It returns woken=true only when the
// pipe fired; the caller treats a deadline pass the same as a timer tick
// either way. Recv is drained so a stale byte does not cause an immediate
// spurious re-wake next iteration.
func (s *Supervisor) wait(ctx context.Context, deadline time.Time) (bool, error) {
	if s.Events == nil {
		return s.sleepUntil(ctx, deadline), nil
	}

	fd := int32(s.Events.ReadFD())
	for {
		if ctx.Err() != nil {
			return false, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		timeout := pollQuantum
		if remaining < timeout {
			timeout = remaining
		}

		fds := []unix.PollFd{{Fd: fd, Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, fmt.Errorf("supervisor: poll event pipe: %w", err)
		}
		if n > 0 && fds[0].Revents&unix.POLLIN != 0 {
			s.Events.Drain()
			return true, nil
		}
	}
}

// sleepUntil is the no-event-pipe fallback, used in tests and by any mode
// that drives a goal without a pipe wired in.
func (s *Supervisor) sleepUntil(ctx context.Context, deadline time.Time) bool {
	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	}
}
