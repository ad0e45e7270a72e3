package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/repository"
)

// Store is a PostgreSQL-backed key-value store for deployments where the
// resilience layer runs next to a server-side component instead of on-device.
type Store struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewStore constructs a store over the provided connection pool. The kv table
// is expected to exist (see EnsureSchema).
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// EnsureSchema creates the kv table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		"CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)")
	if err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

// Get returns the value at key or repository.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	sql, args, err := s.builder.
		Select("value").
		From("kv").
		Where(squirrel.Eq{"key": key}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select kv sql: %w", err)
	}

	var value string
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("select kv: %w", err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	sql, args, err := s.builder.
		Insert("kv").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert kv sql: %w", err)
	}

	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert kv: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	sql, args, err := s.builder.
		Delete("kv").
		Where(squirrel.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete kv sql: %w", err)
	}

	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete kv: %w", err)
	}
	return nil
}

// Keys lists all keys with the given prefix in lexical order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	sql, args, err := s.builder.
		Select("key").
		From("kv").
		Where(squirrel.Like{"key": escapeLike(prefix) + "%"}).
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select kv keys sql: %w", err)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select kv keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan kv key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kv keys: %w", err)
	}
	return keys, nil
}

// DeleteMany removes the listed keys in one statement.
func (s *Store) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	sql, args, err := s.builder.
		Delete("kv").
		Where(squirrel.Eq{"key": keys}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete many kv sql: %w", err)
	}

	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete many kv: %w", err)
	}
	return nil
}

// escapeLike neutralizes LIKE metacharacters so prefixes match literally.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

var _ port.KeyValueStore = (*Store)(nil)
