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
	"github.com/arklim/social-platform-offline/internal/infra/telemetry"
	"github.com/arklim/social-platform-offline/internal/repository"
)

const defaultCacheMaxAge = 30 * time.Minute

// CacheTransform inspects the current cached value (raw JSON, or found=false
// when absent) and returns the replacement value. Returning write=false
// leaves the cache untouched.
type CacheTransform func(current json.RawMessage, found bool) (next any, write bool)

// CacheManager stores remote-derived data with an expiry so the application
// stays usable offline. Reads treat missing, corrupt and expired entries
// uniformly as absent; expired and corrupt entries are purged by the read
// that discovers them.
type CacheManager struct {
	store         port.KeyValueStore
	logger        *zap.Logger
	metrics       *telemetry.Metrics
	prefix        string
	defaultMaxAge time.Duration
	locks         *keyMutex
	now           func() time.Time
}

// NewCacheManager constructs a cache manager over the provided store.
func NewCacheManager(store port.KeyValueStore, log *zap.Logger) *CacheManager {
	if log == nil {
		log = zap.NewNop()
	}

	return &CacheManager{
		store:         store,
		logger:        log,
		prefix:        defaultKeyPrefix,
		defaultMaxAge: defaultCacheMaxAge,
		locks:         newKeyMutex(),
		now:           time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (c *CacheManager) WithClock(clock func() time.Time) *CacheManager {
	if clock != nil {
		c.now = clock
	}
	return c
}

// WithPrefix overrides the key namespace prefix.
func (c *CacheManager) WithPrefix(prefix string) *CacheManager {
	if p := strings.TrimSpace(prefix); p != "" {
		c.prefix = p
	}
	return c
}

// WithDefaultMaxAge overrides the TTL used when the caller does not supply one.
func (c *CacheManager) WithDefaultMaxAge(maxAge time.Duration) *CacheManager {
	if maxAge > 0 {
		c.defaultMaxAge = maxAge
	}
	return c
}

// WithMetrics attaches telemetry counters.
func (c *CacheManager) WithMetrics(metrics *telemetry.Metrics) *CacheManager {
	c.metrics = metrics
	return c
}

// Set stores value under key with the given max age. A non-positive max age
// falls back to the manager's default.
func (c *CacheManager) Set(ctx context.Context, key string, value any, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = c.defaultMaxAge
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache payload: %w", err)
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	return c.saveEntry(ctx, key, domain.CacheEntry{
		Data:          data,
		StoredAt:      c.now().UTC(),
		MaxAgeMS:      maxAge.Milliseconds(),
		SchemaVersion: domain.CacheSchemaVersion,
	})
}

// Get unmarshals the cached value for key into out. It reports false when the
// entry is missing, corrupt or expired; the latter two are deleted as a side
// effect. A storage fault also reports false, with the fault in the error.
// Reads hold the per-key lock, so a purge never removes an entry a concurrent
// Set or Update just wrote.
func (c *CacheManager) Get(ctx context.Context, key string, out any) (bool, error) {
	unlock := c.locks.Lock(key)
	defer unlock()

	raw, err := c.store.Get(ctx, c.key(key))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.metrics.CacheRead("miss")
			return false, nil
		}
		c.metrics.CacheRead("fault")
		return false, &domain.StorageFault{Op: "get", Key: key, Err: err}
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.SchemaVersion != domain.CacheSchemaVersion {
		c.purge(ctx, key, "corrupt")
		c.metrics.CacheRead("miss")
		return false, nil
	}

	if entry.Expired(c.now()) {
		c.purge(ctx, key, "expired")
		c.metrics.CacheRead("expired")
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, out); err != nil {
		c.purge(ctx, key, "corrupt")
		c.metrics.CacheRead("miss")
		return false, nil
	}

	c.metrics.CacheRead("hit")
	return true, nil
}

// Update applies transform to the current value under the per-key lock, so a
// concurrent Update for the same key cannot lose either change. It reports
// whether a new value was written. An updated entry keeps its stored max age
// with a fresh timestamp; a newly created one uses the default max age. A
// corrupt or expired current entry is purged and presented as absent.
func (c *CacheManager) Update(ctx context.Context, key string, transform CacheTransform) (bool, error) {
	if transform == nil {
		return false, fmt.Errorf("transform is required")
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	var (
		current json.RawMessage
		found   bool
		maxAge  = c.defaultMaxAge
	)

	raw, err := c.store.Get(ctx, c.key(key))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// absent
	case err != nil:
		return false, &domain.StorageFault{Op: "get", Key: key, Err: err}
	default:
		var entry domain.CacheEntry
		if jsonErr := json.Unmarshal([]byte(raw), &entry); jsonErr != nil || entry.SchemaVersion != domain.CacheSchemaVersion {
			c.purge(ctx, key, "corrupt")
		} else if entry.Expired(c.now()) {
			c.purge(ctx, key, "expired")
		} else {
			current = entry.Data
			found = true
			maxAge = entry.MaxAge()
		}
	}

	next, write := transform(current, found)
	if !write {
		return false, nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("marshal cache payload: %w", err)
	}

	if err := c.saveEntry(ctx, key, domain.CacheEntry{
		Data:          data,
		StoredAt:      c.now().UTC(),
		MaxAgeMS:      maxAge.Milliseconds(),
		SchemaVersion: domain.CacheSchemaVersion,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the entry for key. Removing an absent entry is a no-op.
func (c *CacheManager) Remove(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, c.key(key)); err != nil {
		return &domain.StorageFault{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// ClearAll deletes every entry in the cache namespace and reports how many
// were removed.
func (c *CacheManager) ClearAll(ctx context.Context) (int, error) {
	prefix := c.prefix + ":cache:"
	keys, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return 0, &domain.StorageFault{Op: "keys", Key: prefix, Err: err}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.store.DeleteMany(ctx, keys); err != nil {
		return 0, &domain.StorageFault{Op: "delete_many", Key: prefix, Err: err}
	}
	return len(keys), nil
}

// Stats scans the cache namespace and aggregates diagnostics. A failing scan
// degrades to zeroed stats with the fault in the error.
func (c *CacheManager) Stats(ctx context.Context) (domain.CacheStats, error) {
	prefix := c.prefix + ":cache:"
	keys, err := c.store.Keys(ctx, prefix)
	if err != nil {
		return domain.CacheStats{}, &domain.StorageFault{Op: "keys", Key: prefix, Err: err}
	}

	now := c.now()
	var stats domain.CacheStats
	for _, storeKey := range keys {
		raw, err := c.store.Get(ctx, storeKey)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.CacheStats{}, &domain.StorageFault{Op: "get", Key: storeKey, Err: err}
		}

		stats.TotalItems++
		stats.SizeBytes += int64(len(raw))

		var entry domain.CacheEntry
		if jsonErr := json.Unmarshal([]byte(raw), &entry); jsonErr != nil || entry.Expired(now) {
			stats.ExpiredItems++
			continue
		}
		stats.ValidItems++
	}
	return stats, nil
}

func (c *CacheManager) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

func (c *CacheManager) saveEntry(ctx context.Context, key string, entry domain.CacheEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.store.Set(ctx, c.key(key), string(payload)); err != nil {
		return &domain.StorageFault{Op: "set", Key: key, Err: err}
	}
	return nil
}

// purge removes a stale or corrupt entry discovered by a read; failures only
// log since the entry is already treated as absent.
func (c *CacheManager) purge(ctx context.Context, key, reason string) {
	if err := c.store.Delete(ctx, c.key(key)); err != nil {
		c.logger.Warn("failed to purge cache entry",
			zap.String("key", key),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}
