// Package database owns the connection to the relational store holding the
// indicator facts, the response cache table and the schema version record.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"

	apierrors "github.com/apien/apien/internal/errors"
)

// Driver names a database/sql driver the store can run on.
type Driver string

const (
	DriverSQLite Driver = "sqlite3"
	DriverDuckDB Driver = "duckdb"
)

// Config holds store connection options.
type Config struct {
	// Driver is the database/sql driver name: sqlite3 or duckdb.
	Driver Driver

	// DSN is the driver-specific connection string: a file path, or
	// ":memory:" for a private in-memory database.
	DSN string

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		ConnectTimeout:  30 * time.Second,
		MaxOpenConns:    8,
		MaxIdleConns:    4,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Store wraps the shared *sql.DB. It is safe for concurrent use; no
// statement runs inside an explicit transaction.
type Store struct {
	db     *sql.DB
	driver Driver
}

// Open connects to the store and verifies the connection within
// cfg.ConnectTimeout.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, apierrors.NewSetupError(apierrors.CodeInvalidConfig, "database: dsn is required", nil)
	}

	dsn := cfg.DSN
	switch cfg.Driver {
	case DriverSQLite:
		dsn = withParams(dsn, "_journal_mode=WAL", "_busy_timeout=5000")
	case DriverDuckDB:
	default:
		return nil, apierrors.NewSetupError(apierrors.CodeInvalidConfig,
			fmt.Sprintf("database: unsupported driver %q", cfg.Driver), nil)
	}

	db, err := sql.Open(string(cfg.Driver), dsn)
	if err != nil {
		return nil, apierrors.NewSetupError(apierrors.CodeConnectFailed, "database: failed to open", err)
	}

	if InMemory(cfg.DSN) {
		// Each connection to an in-memory database gets its own empty
		// database, so the pool is pinned to one connection that never
		// expires.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apierrors.NewSetupError(apierrors.CodeConnectFailed, "database: connection failed", err)
	}

	return &Store{db: db, driver: cfg.Driver}, nil
}

// InMemory reports whether dsn names a private in-memory database rather
// than a file.
func InMemory(dsn string) bool {
	if dsn == ":memory:" || strings.HasPrefix(dsn, ":memory:?") {
		return true
	}
	if strings.HasPrefix(dsn, "file:") && strings.Contains(dsn, "mode=memory") {
		return true
	}
	return false
}

// withParams appends query parameters to a DSN unless the DSN already sets them.
func withParams(dsn string, params ...string) string {
	for _, p := range params {
		name := p[:strings.IndexByte(p, '=')+1]
		if strings.Contains(dsn, name) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + p
		} else {
			dsn += "?" + p
		}
	}
	return dsn
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the driver the store was opened with.
func (s *Store) Driver() Driver {
	return s.driver
}

// QueryContext runs a read statement. Callers close the returned rows.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a statement expected to return at most one row.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// ExecContext runs a single write statement.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

// TableExists reports whether a table is present in the store.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var query string
	switch s.driver {
	case DriverDuckDB:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?"
	default:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return false, fmt.Errorf("database: failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}

// ExecScript runs a composite statement batch on a dedicated connection.
// The connection is released back to the pool only after every statement of
// the batch has completed, so it is clean for whatever runs next.
func (s *Store) ExecScript(ctx context.Context, script string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("database: failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("database: script failed: %w", err)
	}
	return nil
}
