package domain

import (
	"encoding/json"
	"time"
)

// CacheSchemaVersion is stamped on every cache entry so a future format change
// can invalidate persisted data wholesale.
const CacheSchemaVersion = "1"

// CacheEntry is the persisted envelope for a cached payload. Data stays raw
// JSON so the cache manager never needs to know the concrete payload type.
type CacheEntry struct {
	Data          json.RawMessage `json:"data"`
	StoredAt      time.Time       `json:"stored_at"`
	MaxAgeMS      int64           `json:"max_age_ms"`
	SchemaVersion string          `json:"schema_version"`
}

// MaxAge returns the entry's time-to-live as a duration.
func (e CacheEntry) MaxAge() time.Duration {
	return time.Duration(e.MaxAgeMS) * time.Millisecond
}

// Expired reports whether the entry's age exceeds its stored max age. An
// expired entry is treated as absent by every read path.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.MaxAge()
}

// CacheStats aggregates a diagnostic scan over the cache namespace.
type CacheStats struct {
	TotalItems   int   `json:"total_items"`
	ValidItems   int   `json:"valid_items"`
	ExpiredItems int   `json:"expired_items"`
	SizeBytes    int64 `json:"size_bytes"`
}
