package jobs

import (
	"context"
	"testing"

	"github.com/agentcore/agentcore/pkg/models"
)

func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	item, err := store.Enqueue(ctx, "q1", "payload-1", 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if item.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("MaxAttempts = %d, want %d", item.MaxAttempts, DefaultMaxAttempts)
	}
	if item.Status != models.WorkPending {
		t.Fatalf("Status = %v, want %v", item.Status, models.WorkPending)
	}

	claimed, err := store.Claim(ctx, "q1", "worker-a")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil {
		t.Fatalf("Claim returned nil, want an item")
	}
	if claimed.ID != item.ID {
		t.Fatalf("claimed.ID = %q, want %q", claimed.ID, item.ID)
	}
	if claimed.Status != models.WorkRunning {
		t.Fatalf("claimed.Status = %v, want %v", claimed.Status, models.WorkRunning)
	}
	if claimed.Owner != "worker-a" {
		t.Fatalf("claimed.Owner = %q, want %q", claimed.Owner, "worker-a")
	}

	// A second claimant on the same (now-empty) queue gets nothing.
	again, err := store.Claim(ctx, "q1", "worker-b")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if again != nil {
		t.Fatalf("expected a nil claim on an empty queue, got %+v", again)
	}

	if err := store.Complete(ctx, claimed.ID, "done"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err := store.Get(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.WorkCompleted {
		t.Fatalf("Status = %v, want %v", got.Status, models.WorkCompleted)
	}
	if got.Result != "done" {
		t.Fatalf("Result = %q, want %q", got.Result, "done")
	}
}

func TestMemoryStoreContract(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreFailRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	item, err := store.Enqueue(ctx, "q1", "p", 2)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := store.Claim(ctx, "q1", "w1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.Fail(ctx, claimed.ID, "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.WorkPending {
		t.Fatalf("Status = %v, want %v", got.Status, models.WorkPending)
	}
	if got.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", got.Attempts)
	}
	if got.Owner != "" {
		t.Fatalf("Owner = %q, want empty", got.Owner)
	}

	claimed2, err := store.Claim(ctx, "q1", "w2")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed2 == nil {
		t.Fatalf("Claim returned nil, want an item")
	}
	if err := store.Fail(ctx, claimed2.ID, "boom again"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	final, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != models.WorkFailed {
		t.Fatalf("Status = %v, want %v", final.Status, models.WorkFailed)
	}
	if final.Error != "boom again" {
		t.Fatalf("Error = %q, want %q", final.Error, "boom again")
	}
	if final.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", final.Attempts)
	}
}

func TestMemoryStoreFIFOWithinQueue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	first, err := store.Enqueue(ctx, "q1", "first", 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Enqueue(ctx, "q1", "second", 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := store.Claim(ctx, "q1", "w1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.ID != first.ID {
		t.Fatalf("claimed.ID = %q, want %q (FIFO)", claimed.ID, first.ID)
	}
}

func TestMemoryStoreClaimIsolatesQueues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Enqueue(ctx, "q1", "p", 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := store.Claim(ctx, "q2", "w1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected a nil claim on a different queue, got %+v", claimed)
	}
}

func TestSQLiteStoreContract(t *testing.T) {
	store, err := NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	testStoreContract(t, store)
}

func TestSQLiteStoreFailRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	item, err := store.Enqueue(ctx, "q1", "p", 2)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := store.Claim(ctx, "q1", "w1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil {
		t.Fatalf("Claim returned nil, want an item")
	}
	if err := store.Fail(ctx, claimed.ID, "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.WorkPending {
		t.Fatalf("Status = %v, want %v", got.Status, models.WorkPending)
	}
	if got.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", got.Attempts)
	}

	claimed2, err := store.Claim(ctx, "q1", "w2")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed2 == nil {
		t.Fatalf("Claim returned nil, want an item")
	}
	if err := store.Fail(ctx, claimed2.ID, "boom again"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	final, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != models.WorkFailed {
		t.Fatalf("Status = %v, want %v", final.Status, models.WorkFailed)
	}
	if final.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", final.Attempts)
	}
}

func TestSQLiteStoreDoubleClaimReturnsItemOnce(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	if _, err := store.Enqueue(ctx, "q1", "only", 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	first, err := store.Claim(ctx, "q1", "w1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if first == nil {
		t.Fatalf("first Claim returned nil, want an item")
	}

	second, err := store.Claim(ctx, "q1", "w2")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if second != nil {
		t.Fatalf("second Claim = %+v, want nil", second)
	}
}
