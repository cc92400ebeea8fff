package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/agentcore/agentcore/pkg/models"
)

// TurnExecutor is C3: it wraps a Session in a single-worker thread-per-turn
// with an explicit lifecycle, driven by an event pipe (C1).
//
// The source this was modeled on detaches its worker goroutine and then
// spin-waits on an atomic "thread_exited" flag before freeing state -
// flagged in spec §9 as the most dangerous pattern in the original code.
// This implementation instead owns the goroutine's lifetime directly: start
// records a done channel, Wait/Destroy always receive from it, and a new
// turn may not start until the previous one has been observed to finish.
// There is no detach and no spin-wait anywhere in this file.
type TurnExecutor struct {
	session *Session
	notify  Notifier
	log     *slog.Logger

	mu       sync.Mutex
	running  atomic.Bool
	cancel   atomic.Bool
	done     chan struct{}
	cancelFn context.CancelFunc

	result ResultCode
	errMsg string
}

// NewTurnExecutor builds an executor bound to one session. notify is the
// event pipe's write side; it may be nil for callers that poll Result
// directly instead of integrating with a select loop.
func NewTurnExecutor(session *Session, notify Notifier, log *slog.Logger) *TurnExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &TurnExecutor{session: session, notify: notify, log: log}
}

// IsRunning reports whether a worker goroutine currently owns the turn.
func (e *TurnExecutor) IsRunning() bool { return e.running.Load() }

// Cancelled implements CancelChecker for Session.Process.
func (e *TurnExecutor) Cancelled() bool { return e.cancel.Load() }

// Start spawns the worker goroutine that drives one turn to completion. It
// refuses to start a new turn while a previous one is still running or has
// not yet been joined - the concurrency invariant from spec §4.3.
func (e *TurnExecutor) Start(ctx context.Context, userText string, opts ProcessOptions) error {
	e.mu.Lock()
	if e.running.Load() {
		e.mu.Unlock()
		return ErrTurnInProgress
	}
	if e.done != nil {
		select {
		case <-e.done:
		default:
			e.mu.Unlock()
			return ErrTurnInProgress
		}
	}
	turnCtx, cancelFn := context.WithCancel(ctx)
	e.cancelFn = cancelFn
	e.cancel.Store(false)
	e.running.Store(true)
	done := make(chan struct{})
	e.done = done
	e.mu.Unlock()

	go e.run(turnCtx, userText, opts, done)
	return nil
}

func (e *TurnExecutor) run(ctx context.Context, userText string, opts ProcessOptions, done chan struct{}) {
	code, err := e.session.Process(ctx, userText, opts, e)

	e.mu.Lock()
	e.result = code
	if err != nil {
		e.errMsg = err.Error()
	} else {
		e.errMsg = ""
	}
	e.mu.Unlock()

	event := models.EventComplete
	switch code {
	case ResultFailure:
		event = models.EventError
	case ResultCancelled:
		event = models.EventInterrupted
	case ResultContextExhausted:
		event = models.EventComplete
	}
	if e.notify != nil {
		if sendErr := e.notify.Send(event); sendErr != nil {
			e.log.Warn("turn executor: notify failed", "error", sendErr)
		}
	}

	e.running.Store(false)
	close(done)
}

// Cancel requests cooperative cancellation: it sets CancelRequested and, if
// the provider honors context cancellation at its I/O boundary, cancels the
// in-flight request's context too.
func (e *TurnExecutor) Cancel() {
	e.cancel.Store(true)
	e.mu.Lock()
	fn := e.cancelFn
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Wait blocks until the current turn (if any) finishes. It is safe to call
// when no turn is running: it returns immediately.
func (e *TurnExecutor) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return
	}
	<-done
}

// Result returns the last completed turn's result code and error string.
func (e *TurnExecutor) Result() (ResultCode, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.errMsg
}

// Destroy cancels any in-flight turn and joins its goroutine before
// returning - the replacement for the detach+spin-wait anti-pattern. After
// Destroy returns, no goroutine owned by this executor is still running.
func (e *TurnExecutor) Destroy() {
	if e.running.Load() {
		e.Cancel()
	}
	e.Wait()
}
