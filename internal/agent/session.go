package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentcore/agentcore/pkg/models"
)

// DefaultMaxToolRounds is the bounded tool-round cap enforced by Process
// (§4.2 "Bounding"). A round is one assistant tool-call batch followed by
// its results and the subsequent provider call.
const DefaultMaxToolRounds = 20

// ToolDispatcher is C4, injected into the session rather than constructed by
// it: the session never reaches for a global dispatch pipeline (see
// DESIGN.md, "Global singletons"). Dispatch always returns a ToolResult; it
// never returns an error, because a failed dispatch is itself a ToolResult
// with Success=false and is never fatal to the turn.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, sessionID string, call models.ToolCall) models.ToolResult
}

// CancelChecker reports whether the current turn has been asked to stop.
// The turn executor (C3) is the usual implementation; tests may supply a
// simple bool-backed stub.
type CancelChecker interface {
	Cancelled() bool
}

type neverCancel struct{}

func (neverCancel) Cancelled() bool { return false }

// Notifier lets the session tell an external event loop that a sub-agent
// was spawned without the session knowing anything about C1 itself: it only
// needs something it can call Send on. Nil is a valid, silent Notifier.
type Notifier interface {
	Send(event models.AsyncEvent) error
}

// Services is the explicit, per-session collaborator bundle that replaces
// the global message_store/task_store/vector_db/embeddings singletons
// flagged in spec §9. Fields are collaborators the core never constructs
// itself; a nil field means that facility is unavailable to this session.
type Services struct {
	Messages   MessageStore
	Tasks      TaskStore
	Goals      GoalStore
	Actions    ActionStore
	Embeddings Embeddings
}

// MessageStore persists conversation history outside the process.
type MessageStore interface {
	Append(ctx context.Context, sessionID string, msg models.ConversationMessage) error
}

// TaskStore is the narrow facade used by worker-mode sessions; work-item
// semantics live in internal/jobs, this is just the collaborator seam.
type TaskStore interface {
	Get(ctx context.Context, id string) (models.WorkItem, error)
}

// GoalStore and ActionStore are the supervisor's narrow facade onto goal
// and action state (spec §4.6); the core manipulates them only through
// these seams, never by reaching into a store implementation directly.
type GoalStore interface {
	Get(ctx context.Context, id string) (models.Goal, error)
	Save(ctx context.Context, goal models.Goal) error
}

type ActionStore interface {
	Save(ctx context.Context, action models.Action) error
}

// Embeddings is referenced only by interface; the core has no embeddings
// implementation of its own (spec §1 Out of scope).
type Embeddings interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProcessOptions adjusts one Process call without changing the session's
// configuration.
type ProcessOptions struct {
	// SuppressUserAppend skips step 1 of the turn algorithm (appending the
	// user message). No caller in this module sets it: the supervisor and
	// worker loops pass their text as an ordinary user message.
	SuppressUserAppend bool
}

// Session is C2: it owns conversation history, the tool registry, the
// provider configuration, and the services bundle, and executes one model
// turn synchronously via Process. At most one turn may be in flight per
// session; TurnExecutor (C3) enforces that from the outside, but Session
// also refuses concurrent Process calls on its own (the turn executor and
// direct single-shot callers share this guard).
type Session struct {
	ID     string
	Config models.ProviderConfig

	log *slog.Logger

	mu         sync.Mutex
	inFlight   bool
	history    []models.ConversationMessage
	registry   *ToolRegistry
	provider   LLMProvider
	dispatcher ToolDispatcher
	services   *Services
	notifier   Notifier

	maxToolRounds int
	systemPrompt  string
}

// NewSession constructs a configured session. registry, provider, and
// dispatcher are required; services and notifier may be nil.
func NewSession(id string, provider LLMProvider, registry *ToolRegistry, dispatcher ToolDispatcher, services *Services, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if services == nil {
		services = &Services{}
	}
	return &Session{
		ID:            id,
		log:           log.With("session_id", id),
		registry:      registry,
		provider:      provider,
		dispatcher:    dispatcher,
		services:      services,
		maxToolRounds: DefaultMaxToolRounds,
	}
}

// SetNotifier wires the event pipe used to announce sub-agent spawns (C1).
func (s *Session) SetNotifier(n Notifier) { s.notifier = n }

// SetSystemPrompt sets the system prompt used to build every provider
// request for this session.
func (s *Session) SetSystemPrompt(p string) { s.systemPrompt = p }

// History returns a copy of the current conversation history.
func (s *Session) History() []models.ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Process is session_process (§4.2): it runs the bounded turn loop
// synchronously on the calling goroutine (the turn executor supplies that
// goroutine when driven through C3; a single-shot caller may call it
// directly on its own goroutine).
func (s *Session) Process(ctx context.Context, userText string, opts ProcessOptions, cancel CancelChecker) (ResultCode, error) {
	if cancel == nil {
		cancel = neverCancel{}
	}
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ResultFailure, ErrTurnInProgress
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	if !opts.SuppressUserAppend {
		s.appendLocked(models.ConversationMessage{
			Role:      models.RoleUser,
			Content:   userText,
			CreatedAt: now(),
		})
	}

	for round := 0; ; round++ {
		if cancel.Cancelled() {
			return ResultCancelled, nil
		}
		if round >= s.maxToolRounds {
			s.appendLocked(models.ConversationMessage{
				Role:      models.RoleSystem,
				Content:   fmt.Sprintf("tool round cap (%d) reached; stopping", s.maxToolRounds),
				CreatedAt: now(),
			})
			return ResultOK, nil
		}

		if s.provider == nil {
			return ResultFailure, ErrNoProvider
		}

		req := &CompletionRequest{
			Model:     s.Config.Model,
			System:    s.systemPrompt,
			Messages:  s.History(),
			Tools:     s.registry.AsToolSchemas(),
			MaxTokens: s.Config.MaxTokens,
		}

		stream, err := s.provider.Complete(ctx, req)
		if err != nil {
			// TransientIO (spec §7): the conversation is not extended with
			// the failed assistant turn.
			return ResultFailure, err
		}

		text, calls, contextExhausted, streamErr := consumeStream(stream)
		if streamErr != nil {
			return ResultFailure, streamErr
		}
		if contextExhausted {
			return ResultContextExhausted, nil
		}

		if len(calls) == 0 {
			s.appendLocked(models.ConversationMessage{
				Role:      models.RoleAssistant,
				Content:   text,
				CreatedAt: now(),
			})
			return ResultOK, nil
		}

		s.appendLocked(models.ConversationMessage{
			Role:      models.RoleAssistant,
			Content:   text,
			ToolCalls: calls,
			CreatedAt: now(),
		})

		clearFrom := -1
		for i, call := range calls {
			if cancel.Cancelled() {
				return ResultCancelled, nil
			}
			result := s.dispatcher.Dispatch(ctx, s.ID, call)
			s.appendLocked(models.ConversationMessage{
				Role:        models.RoleTool,
				ToolResults: []models.ToolResult{result},
				CreatedAt:   now(),
			})
			if result.ClearHistory && clearFrom < 0 {
				clearFrom = i
			}
		}
		if clearFrom >= 0 {
			s.truncateToLastBatch()
		}
	}
}

func (s *Session) appendLocked(msg models.ConversationMessage) {
	s.mu.Lock()
	s.history = append(s.history, msg)
	s.mu.Unlock()
	if s.services != nil && s.services.Messages != nil {
		// Best-effort persistence; a store failure never aborts the turn,
		// it only means the in-memory history and the durable copy diverge
		// until the next successful append.
		_ = s.services.Messages.Append(context.Background(), s.ID, msg)
	}
}

// truncateToLastBatch implements the clear_history decision in DESIGN.md:
// the assistant tool-call batch that produced the clearing result, and its
// own results, are retained; everything before that batch is dropped.
func (s *Session) truncateToLastBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == models.RoleAssistant && len(s.history[i].ToolCalls) > 0 {
			s.history = append([]models.ConversationMessage{}, s.history[i:]...)
			return
		}
	}
}

// consumeStream drains a provider's StreamEvent sequence into an assembled
// text response and/or tool calls, in emission order (spec §4.2 step 4 and
// "Ordering and tie-breaks"). It never partially consumes: it always reads
// until Done or Error.
func consumeStream(stream <-chan StreamEvent) (text string, calls []models.ToolCall, contextExhausted bool, err error) {
	type building struct {
		name string
		args []byte
	}
	pending := map[string]*building{}
	var order []string

	for ev := range stream {
		switch ev.Kind {
		case StreamTextChunk:
			text += ev.Text
		case StreamToolCallStart:
			pending[ev.ToolCallID] = &building{name: ev.ToolName}
			order = append(order, ev.ToolCallID)
		case StreamToolCallArgumentChunk:
			if b, ok := pending[ev.ToolCallID]; ok {
				b.args = append(b.args, ev.ArgumentChunk...)
			}
		case StreamToolCallEnd:
			// arguments are complete; nothing to do until Done assembles
			// the final ordered slice.
		case StreamDone:
			contextExhausted = ev.ContextExhausted
		case StreamError:
			err = ev.Err
		}
	}
	if err != nil {
		return "", nil, false, err
	}
	for _, id := range order {
		b := pending[id]
		calls = append(calls, models.ToolCall{ID: id, Name: b.name, Input: append([]byte(nil), b.args...)})
	}
	return text, calls, contextExhausted, nil
}

func now() time.Time { return time.Now() }
