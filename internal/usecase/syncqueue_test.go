package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/social-platform-offline/internal/core/domain"
	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/repository/memory"
)

func alwaysOnline() bool  { return true }
func alwaysOffline() bool { return false }

func TestSyncQueue_DrainAppliesInFIFOOrder(t *testing.T) {
	store := memory.NewStore()
	fixed := time.Date(2025, 10, 24, 10, 0, 0, 0, time.UTC)
	queue := NewSyncQueue(store, nil).WithClock(func() time.Time { return fixed })

	ctx := context.Background()
	for _, kind := range []string{"post.create", "post.update", "post.delete"} {
		if _, err := queue.Enqueue(ctx, kind, map[string]string{"id": "42"}); err != nil {
			t.Fatalf("enqueue %s: %v", kind, err)
		}
	}

	var applied []string
	applier := port.ApplierFunc(func(_ context.Context, op domain.SyncOperation) error {
		applied = append(applied, op.Kind)
		return nil
	})

	summary, err := queue.Drain(ctx, applier, alwaysOnline)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if summary.Applied != 3 || summary.Retried != 0 || summary.Dropped != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	want := []string{"post.create", "post.update", "post.delete"}
	if len(applied) != len(want) {
		t.Fatalf("expected %d applications, got %d", len(want), len(applied))
	}
	for i := range want {
		if applied[i] != want[i] {
			t.Fatalf("expected %s at position %d, got %s", want[i], i, applied[i])
		}
	}

	ops, err := queue.Operations(ctx)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected empty queue after drain, got %d operations", len(ops))
	}

	at, ok, err := queue.LastSyncAt(ctx)
	if err != nil {
		t.Fatalf("last sync at: %v", err)
	}
	if !ok {
		t.Fatalf("expected last sync timestamp to be recorded")
	}
	if !at.Equal(fixed) {
		t.Fatalf("expected last sync at %v, got %v", fixed, at)
	}
}

func TestSyncQueue_DrainDropsExhaustedOperations(t *testing.T) {
	store := memory.NewStore()
	queue := NewSyncQueue(store, nil).WithMaxAttempts(2)

	ctx := context.Background()
	if _, err := queue.Enqueue(ctx, "post.create", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := queue.Enqueue(ctx, "post.update", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	applier := port.ApplierFunc(func(_ context.Context, op domain.SyncOperation) error {
		if op.Kind == "post.create" {
			return errors.New("remote rejected payload")
		}
		return nil
	})

	// First pass: the failing operation is retried, the healthy one applied.
	summary, err := queue.Drain(ctx, applier, alwaysOnline)
	if err != nil {
		t.Fatalf("first drain: %v", err)
	}
	if summary.Applied != 1 || summary.Retried != 1 || summary.Dropped != 0 {
		t.Fatalf("unexpected first summary: %+v", summary)
	}

	ops, err := queue.Operations(ctx)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 1 || ops[0].Attempts != 1 || ops[0].LastError == "" {
		t.Fatalf("expected one retried operation with bookkeeping, got %+v", ops)
	}

	// Second pass: the retry budget of 2 is exhausted and the operation drops.
	summary, err = queue.Drain(ctx, applier, alwaysOnline)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if summary.Dropped != 1 {
		t.Fatalf("expected the operation to be dropped, got %+v", summary)
	}

	ops, err = queue.Operations(ctx)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected empty queue after drop, got %d operations", len(ops))
	}
}

func TestSyncQueue_DrainSkipsWhileOffline(t *testing.T) {
	queue := NewSyncQueue(memory.NewStore(), nil)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, "post.create", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	called := false
	applier := port.ApplierFunc(func(context.Context, domain.SyncOperation) error {
		called = true
		return nil
	})

	summary, err := queue.Drain(ctx, applier, alwaysOffline)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !summary.Skipped {
		t.Fatalf("expected drain to be skipped, got %+v", summary)
	}
	if called {
		t.Fatalf("applier must not run while offline")
	}

	ops, err := queue.Operations(ctx)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected operation to remain queued, got %d", len(ops))
	}

	if _, ok, err := queue.LastSyncAt(ctx); err != nil || ok {
		t.Fatalf("expected no last sync timestamp after skipped pass (ok=%v err=%v)", ok, err)
	}
}

func TestSyncQueue_ConcurrentDrainRejected(t *testing.T) {
	queue := NewSyncQueue(memory.NewStore(), nil)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, "post.create", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := port.ApplierFunc(func(context.Context, domain.SyncOperation) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := queue.Drain(ctx, blocking, alwaysOnline)
		done <- err
	}()

	<-entered
	_, err := queue.Drain(ctx, blocking, alwaysOnline)
	if !errors.Is(err, ErrDrainInProgress) {
		t.Fatalf("expected ErrDrainInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("blocking drain: %v", err)
	}
}

func TestSyncQueue_MidDrainEnqueueSurvives(t *testing.T) {
	store := memory.NewStore()
	queue := NewSyncQueue(store, nil)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, "post.create", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// The applier enqueues a new operation while the pass is running; removing
	// the applied operation must not clobber it.
	applier := port.ApplierFunc(func(_ context.Context, op domain.SyncOperation) error {
		if op.Kind == "post.create" {
			if _, err := queue.Enqueue(ctx, "post.update", nil); err != nil {
				t.Fatalf("mid-drain enqueue: %v", err)
			}
		}
		return nil
	})

	summary, err := queue.Drain(ctx, applier, alwaysOnline)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if summary.Applied != 1 {
		t.Fatalf("expected one operation applied, got %+v", summary)
	}

	// The pass drains a snapshot; the new operation waits for the next pass.
	ops, err := queue.Operations(ctx)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != "post.update" {
		t.Fatalf("expected the mid-drain enqueue to survive, got %+v", ops)
	}
}

func TestSyncQueue_CorruptQueueTreatedEmpty(t *testing.T) {
	store := memory.NewStore()
	queue := NewSyncQueue(store, nil)
	ctx := context.Background()

	if err := store.Set(ctx, "offline:sync:queue", "not an array"); err != nil {
		t.Fatalf("seed corrupt queue: %v", err)
	}

	ops, err := queue.Operations(ctx)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected corrupt queue to read as empty, got %d", len(ops))
	}

	// Enqueueing over a corrupt queue starts fresh rather than failing.
	if _, err := queue.Enqueue(ctx, "post.create", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ops, err = queue.Operations(ctx)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected one operation, got %d", len(ops))
	}
}

func TestSyncQueue_Enqueue_Validation(t *testing.T) {
	queue := NewSyncQueue(memory.NewStore(), nil)

	if _, err := queue.Enqueue(context.Background(), "  ", nil); err == nil {
		t.Fatalf("expected error for blank kind")
	}
}

func TestSyncQueue_Enqueue_StorageFault(t *testing.T) {
	queue := NewSyncQueue(newFailingStore(), nil)

	_, err := queue.Enqueue(context.Background(), "post.create", nil)
	var fault *domain.StorageFault
	if !errors.As(err, &fault) {
		t.Fatalf("expected StorageFault, got %v", err)
	}
}

func TestSyncQueue_Clear(t *testing.T) {
	store := memory.NewStore()
	queue := NewSyncQueue(store, nil)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, "post.create", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := queue.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	ops, err := queue.Operations(ctx)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected empty queue after clear, got %d", len(ops))
	}
}
