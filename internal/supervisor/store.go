package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentcore/agentcore/pkg/models"
)

// MemoryGoalStore is an in-memory agent.GoalStore, used by single-process
// supervisor runs and by tests. The goal's Actions slice is the aggregate
// of record; Save replaces the whole goal.
type MemoryGoalStore struct {
	mu    sync.Mutex
	goals map[string]models.Goal
}

// NewMemoryGoalStore returns an empty store.
func NewMemoryGoalStore() *MemoryGoalStore {
	return &MemoryGoalStore{goals: make(map[string]models.Goal)}
}

func (s *MemoryGoalStore) Get(ctx context.Context, id string) (models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, ok := s.goals[id]
	if !ok {
		return models.Goal{}, fmt.Errorf("supervisor: unknown goal %q", id)
	}
	return goal, nil
}

func (s *MemoryGoalStore) Save(ctx context.Context, goal models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[goal.ID] = goal
	return nil
}

// MemoryActionStore is an in-memory agent.ActionStore, tracking the latest
// saved copy of each action by id. It exists alongside MemoryGoalStore
// because the core treats goal (aggregate) and action (narrow facade) as
// separate collaborator seams (see internal/agent/session.go).
type MemoryActionStore struct {
	mu      sync.Mutex
	actions map[string]models.Action
}

// NewMemoryActionStore returns an empty store.
func NewMemoryActionStore() *MemoryActionStore {
	return &MemoryActionStore{actions: make(map[string]models.Action)}
}

func (s *MemoryActionStore) Save(ctx context.Context, action models.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action.ID] = action
	return nil
}

func (s *MemoryActionStore) Get(id string) (models.Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	return a, ok
}
