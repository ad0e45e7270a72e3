package port

import "context"

// KeyValueStore is the durable persistence substrate every service in this
// layer is built on. Implementations must be safe for concurrent use and must
// be byte-for-byte transparent: Get returns exactly the string previously
// passed to Set for the same key.
//
// Get returns repository.ErrNotFound for a missing key; any other error is an
// I/O fault and triggers the fail-secure paths of the callers.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	DeleteMany(ctx context.Context, keys []string) error
}
