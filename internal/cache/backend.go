package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Backend is the persistent key/value table behind the cache. Entries are
// written once and never updated; PutIfAbsent on an existing key is a
// successful no-op.
type Backend interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	PutIfAbsent(ctx context.Context, key, value []byte) error
	Close() error
}

// DB is the subset of *sql.DB (or database.Store) the SQL backend uses.
type DB interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLBackend keeps entries in the cache table of the relational store.
type SQLBackend struct {
	db DB
}

// NewSQLBackend returns a backend over the store's cache table. The table
// is created by the install script.
func NewSQLBackend(db DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT "value" FROM cache WHERE "key" = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: select: %w", err)
	}
	return value, true, nil
}

// PutIfAbsent inserts the entry, ignoring a conflict with a concurrent
// writer of the same key.
func (b *SQLBackend) PutIfAbsent(ctx context.Context, key, value []byte) error {
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO cache ("key", "value") VALUES (?, ?) ON CONFLICT ("key") DO NOTHING`,
		key, value,
	); err != nil {
		return fmt.Errorf("cache: insert: %w", err)
	}
	return nil
}

// Close is a no-op; the store is owned by the caller.
func (b *SQLBackend) Close() error { return nil }
