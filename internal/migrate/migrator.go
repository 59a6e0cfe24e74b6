package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"

	apierrors "github.com/apien/apien/internal/errors"
	"github.com/apien/apien/internal/logger"
	"github.com/apien/apien/internal/metrics"
	"github.com/apien/apien/internal/storage"
)

// Store is the part of the relational store the migrator needs.
type Store interface {
	TableExists(ctx context.Context, name string) (bool, error)
	ExecScript(ctx context.Context, script string) error
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Result reports what a run did.
type Result struct {
	// Installed is true when the install script ran.
	Installed bool
	// Applied lists the scripts applied, in order.
	Applied []Script
	// Version is the schema version after the run.
	Version float64
}

// Migrator applies scripts from a source to a store. Run does its work at
// most once per Migrator.
type Migrator struct {
	store   Store
	source  storage.ObjectStorage
	log     *logger.Logger
	metrics *metrics.Metrics

	once   sync.Once
	result Result
	err    error
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the migrator's logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Migrator) { m.log = l }
}

// WithMetrics records applied scripts and the schema version.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Migrator) { m.metrics = mt }
}

// New creates a migrator reading scripts from source.
func New(store Store, source storage.ObjectStorage, opts ...Option) *Migrator {
	m := &Migrator{store: store, source: source, log: logger.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Component("migrate")
	return m
}

// Run brings the schema up to date. Later calls return the first call's
// outcome without touching the store. Every failure is a SETUP error; the
// versions of scripts applied before the failure stay recorded.
func (m *Migrator) Run(ctx context.Context) (Result, error) {
	m.once.Do(func() {
		m.result, m.err = m.run(ctx)
	})
	return m.result, m.err
}

func (m *Migrator) run(ctx context.Context) (Result, error) {
	var result Result

	names, err := m.source.ListObjects(ctx)
	if err != nil {
		return result, apierrors.NewSetupError(apierrors.CodeScriptFailed, "failed to list migration scripts", err)
	}

	var scripts []Script
	available := make(map[string]Script, len(names))
	for _, name := range names {
		s, ok := ParseScript(name)
		if !ok {
			m.log.Debug().Str("name", name).Msg("skipping non-script object")
			continue
		}
		scripts = append(scripts, s)
		available[name] = s
	}
	sortScripts(scripts)

	current, ok, err := CurrentVersion(ctx, m.store)
	if err != nil {
		return result, apierrors.NewSetupError(apierrors.CodeScriptFailed, "failed to read schema version", err)
	}

	if !ok {
		install, found := findInstall(available)
		if !found {
			return result, apierrors.NewSetupError(apierrors.CodeInstallScriptMissing,
				fmt.Sprintf("Initial install script %s not found", InstallScriptNames[0]), nil)
		}
		if err := m.apply(ctx, install); err != nil {
			return result, err
		}
		current = install.Version
		result.Installed = true
		result.Applied = append(result.Applied, install)
	}

	for _, s := range scripts {
		if s.Version <= current {
			continue
		}
		if err := m.apply(ctx, s); err != nil {
			result.Version = current
			return result, err
		}
		current = s.Version
		result.Applied = append(result.Applied, s)
	}

	result.Version = current
	if m.metrics != nil {
		m.metrics.SchemaVersion.Set(current)
	}
	m.log.Info().
		Int("applied", len(result.Applied)).
		Str("version", FormatVersion(current)).
		Msg("schema up to date")
	return result, nil
}

func findInstall(available map[string]Script) (Script, bool) {
	for _, name := range InstallScriptNames {
		if s, ok := available[name]; ok {
			return s, true
		}
	}
	return Script{}, false
}

// apply runs one script and then records its version. ExecScript releases
// its connection before the version is written.
func (m *Migrator) apply(ctx context.Context, s Script) error {
	body, err := m.read(ctx, s)
	if err != nil {
		return apierrors.NewSetupError(apierrors.CodeScriptFailed,
			fmt.Sprintf("failed to read migration script %s", s.Name), err)
	}

	if err := m.store.ExecScript(ctx, body); err != nil {
		m.log.Error().Err(err).Str("script", s.Name).Msg("migration script failed")
		return apierrors.NewSetupError(apierrors.CodeScriptFailed,
			fmt.Sprintf("migration script %s failed", s.Name), err)
	}

	if err := SetVersion(ctx, m.store, s.Version); err != nil {
		return apierrors.NewSetupError(apierrors.CodeScriptFailed,
			fmt.Sprintf("failed to record version after %s", s.Name), err)
	}

	if m.metrics != nil {
		m.metrics.MigrationsApplied.Inc()
	}
	m.log.Info().Str("script", s.Name).Str("version", FormatVersion(s.Version)).Msg("applied migration script")
	return nil
}

func (m *Migrator) read(ctx context.Context, s Script) (string, error) {
	rc, err := m.source.Open(ctx, s.Name)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var r io.Reader = rc
	if s.Gzip {
		zr, err := gzip.NewReader(rc)
		if err != nil {
			return "", err
		}
		defer zr.Close()
		r = zr
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CurrentVersion returns the recorded schema version. ok is false when the
// version table or its row does not exist yet.
func CurrentVersion(ctx context.Context, store Store) (float64, bool, error) {
	exists, err := store.TableExists(ctx, "version")
	if err != nil {
		return 0, false, err
	}
	if !exists {
		return 0, false, nil
	}

	var v float64
	err = store.QueryRowContext(ctx, `SELECT "value" FROM version WHERE "key" = 'database'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migrate: failed to read version: %w", err)
	}
	return v, true, nil
}

// SetVersion records v as the schema version.
func SetVersion(ctx context.Context, store Store, v float64) error {
	_, err := store.ExecContext(ctx,
		`INSERT INTO version ("key", "value") VALUES ('database', ?) `+
			`ON CONFLICT ("key") DO UPDATE SET "value" = excluded."value"`, v)
	if err != nil {
		return fmt.Errorf("migrate: failed to set version: %w", err)
	}
	return nil
}
