package redis

import (
	"context"
	"errors"
	"fmt"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/repository"
)

// scanBatchSize bounds how many keys one SCAN iteration may return.
const scanBatchSize = 256

// Store adapts a Redis client to the durable key-value store port.
type Store struct {
	client *red.Client
}

// NewStore constructs a Redis-backed store using the provided client.
func NewStore(client *red.Client) *Store {
	return &Store{client: client}
}

// Get fetches the value at key, translating a Redis miss into ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// Set stores value under key without expiry; TTL bookkeeping lives in the
// records themselves so every backend behaves identically.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys lists all keys with the given prefix using cursor-based SCAN so large
// namespaces never block the server.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// DeleteMany removes the listed keys in a single round trip.
func (s *Store) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del many: %w", err)
	}
	return nil
}

var _ port.KeyValueStore = (*Store)(nil)
