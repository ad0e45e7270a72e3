package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-offline/internal/core/domain"
	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/infra/telemetry"
	"github.com/arklim/social-platform-offline/internal/repository"
)

const (
	defaultMaxAttempts  = 3
	defaultApplyTimeout = 30 * time.Second
)

// ErrDrainInProgress is returned when Drain is invoked while another drain
// pass holds the queue, e.g. a connectivity-regained event racing a manual
// refresh. The losing caller simply waits for the next pass.
var ErrDrainInProgress = errors.New("sync queue: drain already in progress")

// SyncQueue buffers locally-originated mutations in a durable FIFO queue and
// drains them against an externally supplied applier once connectivity is
// available. Processing is strictly sequential so causally dependent
// operations on the same entity (create-then-update) never reorder.
type SyncQueue struct {
	store        port.KeyValueStore
	logger       *zap.Logger
	metrics      *telemetry.Metrics
	prefix       string
	maxAttempts  int
	applyTimeout time.Duration
	now          func() time.Time

	mu      sync.Mutex // guards queue reads-modify-writes
	drainMu sync.Mutex // held for the duration of one drain pass
}

// NewSyncQueue constructs a queue over the provided store.
func NewSyncQueue(store port.KeyValueStore, log *zap.Logger) *SyncQueue {
	if log == nil {
		log = zap.NewNop()
	}

	return &SyncQueue{
		store:        store,
		logger:       log,
		prefix:       defaultKeyPrefix,
		maxAttempts:  defaultMaxAttempts,
		applyTimeout: defaultApplyTimeout,
		now:          time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (q *SyncQueue) WithClock(clock func() time.Time) *SyncQueue {
	if clock != nil {
		q.now = clock
	}
	return q
}

// WithPrefix overrides the key namespace prefix.
func (q *SyncQueue) WithPrefix(prefix string) *SyncQueue {
	if p := strings.TrimSpace(prefix); p != "" {
		q.prefix = p
	}
	return q
}

// WithMaxAttempts overrides the retry budget stamped on new operations.
func (q *SyncQueue) WithMaxAttempts(maxAttempts int) *SyncQueue {
	if maxAttempts > 0 {
		q.maxAttempts = maxAttempts
	}
	return q
}

// WithApplyTimeout overrides the per-operation timeout the coordinator
// imposes on the applier so one stuck call cannot starve the queue.
func (q *SyncQueue) WithApplyTimeout(timeout time.Duration) *SyncQueue {
	if timeout > 0 {
		q.applyTimeout = timeout
	}
	return q
}

// WithMetrics attaches telemetry counters.
func (q *SyncQueue) WithMetrics(metrics *telemetry.Metrics) *SyncQueue {
	q.metrics = metrics
	return q
}

// Enqueue appends a new operation and returns once it is durably persisted.
func (q *SyncQueue) Enqueue(ctx context.Context, kind string, payload map[string]string) (domain.SyncOperation, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return domain.SyncOperation{}, fmt.Errorf("kind is required")
	}

	op := domain.SyncOperation{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     payload,
		EnqueuedAt:  q.now().UTC(),
		Attempts:    0,
		MaxAttempts: q.maxAttempts,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.loadQueue(ctx)
	if err != nil {
		return domain.SyncOperation{}, err
	}
	ops = append(ops, op)
	if err := q.saveQueue(ctx, ops); err != nil {
		return domain.SyncOperation{}, err
	}

	q.logger.Debug("sync operation enqueued",
		zap.String("id", op.ID),
		zap.String("kind", op.Kind),
		zap.Int("queue_length", len(ops)),
	)
	return op, nil
}

// Operations returns a snapshot of the pending queue in enqueue order.
func (q *SyncQueue) Operations(ctx context.Context) ([]domain.SyncOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadQueue(ctx)
}

// Clear drops every pending operation. Administrative/test use only; queued
// mutations carry no adversarial incentive to be cleared, unlike the
// rate-limiter's retention-guarded sweep.
func (q *SyncQueue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Delete(ctx, q.queueKey()); err != nil {
		return &domain.StorageFault{Op: "delete", Key: q.queueKey(), Err: err}
	}
	return nil
}

// LastSyncAt returns when the last drain pass completed, reporting false when
// no pass has run yet.
func (q *SyncQueue) LastSyncAt(ctx context.Context) (time.Time, bool, error) {
	raw, err := q.store.Get(ctx, q.lastSyncKey())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, &domain.StorageFault{Op: "get", Key: q.lastSyncKey(), Err: err}
	}

	at, parseErr := time.Parse(time.RFC3339Nano, raw)
	if parseErr != nil {
		return time.Time{}, false, nil
	}
	return at, true, nil
}

// Drain processes the pending queue strictly in FIFO order against applier.
// It is a no-op when online reports false. Each operation gets its own
// timeout; success removes it, failure increments its attempt count, and an
// exhausted retry budget drops it permanently. The pass timestamp is
// persisted regardless of individual outcomes. Only one drain runs at a time;
// a concurrent call returns ErrDrainInProgress.
func (q *SyncQueue) Drain(ctx context.Context, applier port.Applier, online func() bool) (domain.DrainSummary, error) {
	if applier == nil {
		return domain.DrainSummary{}, fmt.Errorf("applier is required")
	}
	if online != nil && !online() {
		q.logger.Debug("drain skipped while offline")
		return domain.DrainSummary{Skipped: true}, nil
	}

	if !q.drainMu.TryLock() {
		return domain.DrainSummary{Skipped: true}, ErrDrainInProgress
	}
	defer q.drainMu.Unlock()

	q.mu.Lock()
	pending, err := q.loadQueue(ctx)
	q.mu.Unlock()
	if err != nil {
		return domain.DrainSummary{}, err
	}

	var summary domain.DrainSummary
	for _, op := range pending {
		applyCtx, cancel := context.WithTimeout(ctx, q.applyTimeout)
		applyErr := applier.Apply(applyCtx, op)
		cancel()

		if applyErr == nil {
			summary.Applied++
			q.metrics.SyncOperation("applied")
			if err := q.removeOperation(ctx, op.ID); err != nil {
				q.logger.Warn("failed to remove applied operation", zap.String("id", op.ID), zap.Error(err))
			}
			continue
		}

		failure := &domain.ApplyFailure{Kind: op.Kind, ID: op.ID, Err: applyErr}
		op.Attempts++
		op.LastError = applyErr.Error()

		if op.Exhausted() {
			summary.Dropped++
			q.metrics.SyncOperation("dropped")
			exhausted := &domain.RetryExhausted{
				Kind:      op.Kind,
				ID:        op.ID,
				Attempts:  op.Attempts,
				LastError: op.LastError,
			}
			q.logger.Error("sync operation dropped", zap.Error(exhausted))
			if err := q.removeOperation(ctx, op.ID); err != nil {
				q.logger.Warn("failed to remove dropped operation", zap.String("id", op.ID), zap.Error(err))
			}
			continue
		}

		summary.Retried++
		q.metrics.SyncOperation("retried")
		q.logger.Warn("sync operation failed, will retry",
			zap.Int("attempts", op.Attempts),
			zap.Int("max_attempts", op.MaxAttempts),
			zap.Error(failure),
		)
		if err := q.updateOperation(ctx, op); err != nil {
			q.logger.Warn("failed to persist retry bookkeeping", zap.String("id", op.ID), zap.Error(err))
		}
	}

	if err := q.store.Set(ctx, q.lastSyncKey(), q.now().UTC().Format(time.RFC3339Nano)); err != nil {
		q.logger.Warn("failed to persist last sync timestamp", zap.Error(err))
	}
	q.metrics.DrainPass()

	q.logger.Info("drain pass completed",
		zap.Int("applied", summary.Applied),
		zap.Int("retried", summary.Retried),
		zap.Int("dropped", summary.Dropped),
	)
	return summary, nil
}

func (q *SyncQueue) queueKey() string {
	return q.prefix + ":sync:queue"
}

func (q *SyncQueue) lastSyncKey() string {
	return q.prefix + ":sync:last_sync_at"
}

// loadQueue must be called with q.mu held. A corrupt queue payload is treated
// as empty rather than aborting the caller; the damage is logged once here.
func (q *SyncQueue) loadQueue(ctx context.Context) ([]domain.SyncOperation, error) {
	raw, err := q.store.Get(ctx, q.queueKey())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, &domain.StorageFault{Op: "get", Key: q.queueKey(), Err: err}
	}

	var ops []domain.SyncOperation
	if jsonErr := json.Unmarshal([]byte(raw), &ops); jsonErr != nil {
		q.logger.Error("sync queue payload corrupt, starting empty",
			zap.Error(&domain.CorruptRecord{Key: q.queueKey(), Err: jsonErr}),
		)
		return nil, nil
	}
	return ops, nil
}

// saveQueue must be called with q.mu held.
func (q *SyncQueue) saveQueue(ctx context.Context, ops []domain.SyncOperation) error {
	payload, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("marshal sync queue: %w", err)
	}
	if err := q.store.Set(ctx, q.queueKey(), string(payload)); err != nil {
		return &domain.StorageFault{Op: "set", Key: q.queueKey(), Err: err}
	}
	return nil
}

// removeOperation deletes one operation by id, re-reading the queue so an
// enqueue that landed mid-drain is never lost.
func (q *SyncQueue) removeOperation(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.loadQueue(ctx)
	if err != nil {
		return err
	}

	kept := ops[:0]
	for _, op := range ops {
		if op.ID != id {
			kept = append(kept, op)
		}
	}
	if len(kept) == 0 {
		if err := q.store.Delete(ctx, q.queueKey()); err != nil {
			return &domain.StorageFault{Op: "delete", Key: q.queueKey(), Err: err}
		}
		return nil
	}
	return q.saveQueue(ctx, kept)
}

// updateOperation persists retry bookkeeping for one operation in place.
func (q *SyncQueue) updateOperation(ctx context.Context, updated domain.SyncOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.loadQueue(ctx)
	if err != nil {
		return err
	}
	for i := range ops {
		if ops[i].ID == updated.ID {
			ops[i] = updated
			break
		}
	}
	return q.saveQueue(ctx, ops)
}
