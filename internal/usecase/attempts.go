package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-offline/internal/core/domain"
	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/infra/logger"
	"github.com/arklim/social-platform-offline/internal/infra/telemetry"
	"github.com/arklim/social-platform-offline/internal/repository"
)

const defaultKeyPrefix = "offline"

// AttemptLimiter throttles repeated sensitive actions (login, password reset,
// registration) keyed by an opaque identifier such as "login:<email>".
//
// Every operation that gates access is fail-secure: a storage fault or a
// corrupt record denies the action and surfaces the underlying fault through
// the error return, never a silent permit.
type AttemptLimiter struct {
	store   port.KeyValueStore
	logger  *zap.Logger
	metrics *telemetry.Metrics
	prefix  string
	locks   *keyMutex
	now     func() time.Time
}

// NewAttemptLimiter constructs a limiter over the provided store.
func NewAttemptLimiter(store port.KeyValueStore, log *zap.Logger) *AttemptLimiter {
	if log == nil {
		log = zap.NewNop()
	}

	return &AttemptLimiter{
		store:  store,
		logger: log,
		prefix: defaultKeyPrefix,
		locks:  newKeyMutex(),
		now:    time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (l *AttemptLimiter) WithClock(clock func() time.Time) *AttemptLimiter {
	if clock != nil {
		l.now = clock
	}
	return l
}

// WithPrefix overrides the key namespace prefix.
func (l *AttemptLimiter) WithPrefix(prefix string) *AttemptLimiter {
	if p := strings.TrimSpace(prefix); p != "" {
		l.prefix = p
	}
	return l
}

// WithMetrics attaches telemetry counters.
func (l *AttemptLimiter) WithMetrics(metrics *telemetry.Metrics) *AttemptLimiter {
	l.metrics = metrics
	return l
}

// CheckLimit reports whether the action identified by key may proceed. A
// record whose window has elapsed is deleted as a side effect and the action
// is allowed. Any failure reading or deserializing the record denies the
// action and returns the fault so callers can tell "denied" from "broken".
func (l *AttemptLimiter) CheckLimit(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error) {
	if maxAttempts <= 0 {
		return false, fmt.Errorf("max attempts must be positive")
	}
	if window <= 0 {
		return false, fmt.Errorf("window must be positive")
	}

	record, err := l.loadRecord(ctx, key)
	if err != nil {
		l.metrics.LimitCheck("fault")
		l.logger.Warn("rate limit check denied on fault",
			zap.String("key", logger.MaskKey(key)),
			zap.Error(err),
		)
		return false, err
	}
	if record == nil {
		l.metrics.LimitCheck("allowed")
		return true, nil
	}

	if record.WindowExpired(l.now(), window) {
		if delErr := l.store.Delete(ctx, l.key(key)); delErr != nil {
			l.logger.Warn("failed to delete expired attempt record",
				zap.String("key", logger.MaskKey(key)),
				zap.Error(delErr),
			)
		}
		l.metrics.LimitCheck("allowed")
		return true, nil
	}

	if record.Count >= maxAttempts {
		l.metrics.LimitCheck("denied")
		l.logger.Info("rate limit exceeded",
			zap.String("key", logger.MaskKey(key)),
			zap.Int("count", record.Count),
			zap.Int("max_attempts", maxAttempts),
		)
		return false, nil
	}

	l.metrics.LimitCheck("allowed")
	return true, nil
}

// RecordAttempt increments the counter for key, opening a new window when no
// record exists. The caller's flow must not depend on success: the returned
// fault is advisory and is already logged.
func (l *AttemptLimiter) RecordAttempt(ctx context.Context, key string) error {
	unlock := l.locks.Lock(key)
	defer unlock()

	now := l.now().UTC()

	record, err := l.loadRecord(ctx, key)
	var next domain.AttemptRecord
	switch {
	case err != nil:
		var corrupt *domain.CorruptRecord
		if !errors.As(err, &corrupt) {
			l.logger.Warn("record attempt skipped on storage fault",
				zap.String("key", logger.MaskKey(key)),
				zap.Error(err),
			)
			return err
		}
		// Corrupt record: restart the window rather than lose counting entirely.
		next = domain.AttemptRecord{Count: 1, FirstAttemptAt: now, LastAttemptAt: now}
	case record == nil:
		next = domain.AttemptRecord{Count: 1, FirstAttemptAt: now, LastAttemptAt: now}
	default:
		next = *record
		next.Count++
		next.LastAttemptAt = now
	}

	if err := l.saveRecord(ctx, key, next); err != nil {
		l.logger.Warn("failed to persist attempt record",
			zap.String("key", logger.MaskKey(key)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ResetAttempts deletes the record for key, typically after a successful
// sensitive action. Resetting an absent record is a no-op.
func (l *AttemptLimiter) ResetAttempts(ctx context.Context, key string) error {
	if err := l.store.Delete(ctx, l.key(key)); err != nil {
		fault := &domain.StorageFault{Op: "delete", Key: key, Err: err}
		l.logger.Warn("failed to reset attempts",
			zap.String("key", logger.MaskKey(key)),
			zap.Error(err),
		)
		return fault
	}
	return nil
}

// RemainingAttempts returns how many attempts are left before key hits the
// limit. On failure it reports zero remaining (no attempts left) plus the
// fault.
func (l *AttemptLimiter) RemainingAttempts(ctx context.Context, key string, maxAttempts int) (int, error) {
	record, err := l.loadRecord(ctx, key)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return maxAttempts, nil
	}
	return record.Remaining(maxAttempts), nil
}

// WaitTime returns how long until the window for key closes, zero when no
// record exists or the window already closed. On failure it reports zero plus
// the fault; CheckLimit remains the gate, so a zero wait alone never grants
// permission.
func (l *AttemptLimiter) WaitTime(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	record, err := l.loadRecord(ctx, key)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, nil
	}

	closesAt := record.FirstAttemptAt.Add(window)
	now := l.now()
	if !closesAt.After(now) {
		return 0, nil
	}
	return closesAt.Sub(now), nil
}

// ClearExpired sweeps the rate-limit namespace, removing records older than
// the retention floor and records that fail to parse. Retention is
// independent of any caller's window: a record still inside the retention
// period survives even when it is actively blocking, so a bulk clear can
// never be used to bypass a live limit.
func (l *AttemptLimiter) ClearExpired(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}

	prefix := l.prefix + ":rate:"
	keys, err := l.store.Keys(ctx, prefix)
	if err != nil {
		return 0, &domain.StorageFault{Op: "keys", Key: prefix, Err: err}
	}

	now := l.now()
	var stale []string
	for _, storeKey := range keys {
		raw, err := l.store.Get(ctx, storeKey)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			// Unreadable is not the same as expired; leave it for the next sweep.
			l.logger.Warn("sweep skipped unreadable record", zap.Error(err))
			continue
		}

		var record domain.AttemptRecord
		if jsonErr := json.Unmarshal([]byte(raw), &record); jsonErr != nil {
			stale = append(stale, storeKey)
			continue
		}
		if now.Sub(record.FirstAttemptAt) > retention {
			stale = append(stale, storeKey)
		}
	}

	if len(stale) == 0 {
		return 0, nil
	}
	if err := l.store.DeleteMany(ctx, stale); err != nil {
		return 0, &domain.StorageFault{Op: "delete_many", Key: prefix, Err: err}
	}

	l.logger.Info("cleared expired attempt records",
		zap.Int("removed", len(stale)),
		zap.Duration("retention", retention),
	)
	return len(stale), nil
}

func (l *AttemptLimiter) key(key string) string {
	return fmt.Sprintf("%s:rate:%s", l.prefix, key)
}

// loadRecord returns the record for key, nil when absent, or a typed fault.
func (l *AttemptLimiter) loadRecord(ctx context.Context, key string) (*domain.AttemptRecord, error) {
	storeKey := l.key(key)

	raw, err := l.store.Get(ctx, storeKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, &domain.StorageFault{Op: "get", Key: key, Err: err}
	}

	var record domain.AttemptRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, &domain.CorruptRecord{Key: key, Err: err}
	}
	return &record, nil
}

func (l *AttemptLimiter) saveRecord(ctx context.Context, key string, record domain.AttemptRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal attempt record: %w", err)
	}
	if err := l.store.Set(ctx, l.key(key), string(payload)); err != nil {
		return &domain.StorageFault{Op: "set", Key: key, Err: err}
	}
	return nil
}
