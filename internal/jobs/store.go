// Package jobs implements C5, the work queue: a named FIFO of work items
// with atomic claim/complete/fail/retry, backed by a transactional store
// (spec §4.5/§6).
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/pkg/models"
)

// DefaultMaxAttempts is the retry ceiling applied when a caller enqueues an
// item without specifying one (spec §6, "max_attempts (int default 3)").
const DefaultMaxAttempts = 3

// Store persists work items. Claim must be atomic: a Pending item is handed
// to at most one caller even under concurrent claimants on the same queue.
type Store interface {
	Enqueue(ctx context.Context, queue, payload string, maxAttempts int) (models.WorkItem, error)
	// Claim atomically moves the oldest Pending item on queue to Running,
	// recording owner, and returns it. It returns (nil, nil) if the queue
	// has no claimable item.
	Claim(ctx context.Context, queue, owner string) (*models.WorkItem, error)
	Complete(ctx context.Context, itemID, result string) error
	// Fail increments the item's attempt count; if attempts remain it
	// resets to Pending (owner cleared) for a future claim, else it moves
	// to Failed with err recorded.
	Fail(ctx context.Context, itemID, errMsg string) error
	Get(ctx context.Context, itemID string) (models.WorkItem, error)
	List(ctx context.Context, queue string) ([]models.WorkItem, error)
}

// MemoryStore is an in-memory Store, used by tests and by single-process
// modes that do not need the item to survive a restart.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*models.WorkItem
	order []string // insertion order, for FIFO claim and List
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*models.WorkItem)}
}

func (s *MemoryStore) Enqueue(ctx context.Context, queue, payload string, maxAttempts int) (models.WorkItem, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now()
	item := &models.WorkItem{
		ID:          uuid.NewString(),
		Queue:       queue,
		Payload:     payload,
		Status:      models.WorkPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.mu.Lock()
	s.items[item.ID] = item
	s.order = append(s.order, item.ID)
	s.mu.Unlock()
	return *item, nil
}

func (s *MemoryStore) Claim(ctx context.Context, queue, owner string) (*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		item := s.items[id]
		if item.Queue == queue && item.Status == models.WorkPending {
			item.Status = models.WorkRunning
			item.Owner = owner
			item.UpdatedAt = time.Now()
			claimed := *item
			return &claimed, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Complete(ctx context.Context, itemID, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil
	}
	item.Status = models.WorkCompleted
	item.Result = result
	item.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Fail(ctx context.Context, itemID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil
	}
	item.Attempts++
	item.UpdatedAt = time.Now()
	if item.Attempts < item.MaxAttempts {
		item.Status = models.WorkPending
		item.Owner = ""
	} else {
		item.Status = models.WorkFailed
		item.Error = errMsg
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, itemID string) (models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return models.WorkItem{}, nil
	}
	return *item, nil
}

func (s *MemoryStore) List(ctx context.Context, queue string) ([]models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WorkItem, 0, len(s.order))
	for _, id := range s.order {
		item := s.items[id]
		if queue == "" || item.Queue == queue {
			out = append(out, *item)
		}
	}
	return out, nil
}
