package sqlite

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/repository"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
) WITHOUT ROWID;`

// Store is a local SQLite-backed key-value store. It is the default durable
// substrate for the offline client: a single file, WAL mode, no server.
type Store struct {
	pool *sqlitex.Pool
}

// Open creates (if needed) and opens the database at path. Use ":memory:" in
// tests. The caller must Close the store when done.
func Open(path string, poolSize int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if poolSize <= 0 {
		poolSize = 4
	}
	if path == ":memory:" {
		// Each in-memory connection is an independent database.
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			if err := sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode=WAL;", nil); err != nil {
				return fmt.Errorf("enable wal: %w", err)
			}
			if err := sqlitex.ExecuteTransient(conn, "PRAGMA synchronous=NORMAL;", nil); err != nil {
				return fmt.Errorf("set synchronous: %w", err)
			}
			if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", path, err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Get returns the value at key or repository.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("sqlite take conn: %w", err)
	}
	defer s.pool.Put(conn)

	var (
		value string
		found bool
	)
	err = sqlitex.Execute(conn, "SELECT value FROM kv WHERE key = ?;", &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("sqlite select: %w", err)
	}
	if !found {
		return "", repository.ErrNotFound
	}
	return value, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite take conn: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value;",
		&sqlitex.ExecOptions{Args: []any{key, value}},
	)
	if err != nil {
		return fmt.Errorf("sqlite upsert: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite take conn: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM kv WHERE key = ?;", &sqlitex.ExecOptions{
		Args: []any{key},
	})
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

// Keys lists all keys with the given prefix in lexical order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite take conn: %w", err)
	}
	defer s.pool.Put(conn)

	var keys []string
	err = sqlitex.Execute(conn,
		"SELECT key FROM kv WHERE key >= ? AND key < ? ORDER BY key;",
		&sqlitex.ExecOptions{
			Args: []any{prefix, prefixUpperBound(prefix)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				keys = append(keys, stmt.ColumnText(0))
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite select keys: %w", err)
	}
	return keys, nil
}

// DeleteMany removes the listed keys inside one transaction.
func (s *Store) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite take conn: %w", err)
	}
	defer s.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer endFn(&err)

	for _, key := range keys {
		if err = sqlitex.Execute(conn, "DELETE FROM kv WHERE key = ?;", &sqlitex.ExecOptions{
			Args: []any{key},
		}); err != nil {
			err = fmt.Errorf("sqlite delete many: %w", err)
			return err
		}
	}
	return nil
}

// prefixUpperBound returns the smallest string greater than every string with
// the given prefix, for range scans over the ordered key column.
func prefixUpperBound(prefix string) string {
	if prefix == "" {
		return "￿"
	}
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return string(end[:i+1])
		}
	}
	return strings.Repeat("\xff", len(prefix)+1)
}

var _ port.KeyValueStore = (*Store)(nil)
