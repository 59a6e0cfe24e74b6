// Package testutil provides a seeded store for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apien/apien/internal/database"
	"github.com/apien/apien/migrations"
)

// SeedScript loads a small fixture: two countries, two indicators and a
// handful of yearly values, named in English and French.
const SeedScript = `
INSERT INTO country_name (code, language, name) VALUES
    ('usa', 'EN', 'United States'),
    ('usa', 'FR', 'États-Unis'),
    ('can', 'EN', 'Canada'),
    ('can', 'FR', 'Canada');
INSERT INTO indicator_name (id, language, name) VALUES
    (1, 'EN', 'Population'),
    (1, 'FR', 'Population'),
    (2, 'EN', 'GDP'),
    (2, 'FR', 'PIB');
INSERT INTO indicator_value (country_code, indicator_id, year, value) VALUES
    ('usa', 1, 2020, 331.5),
    ('usa', 1, 2021, 332.0),
    ('usa', 2, 2020, 20.9),
    ('can', 1, 2020, 38.0),
    ('can', 2, 2021, NULL);
`

// OpenStore opens an empty SQLite store in a per-test directory.
func OpenStore(t testing.TB) *database.Store {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "apien.db")

	store, err := database.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// SeededStore opens a store, runs the bundled install script and loads
// SeedScript.
func SeededStore(t testing.TB) *database.Store {
	t.Helper()
	store := OpenStore(t)

	install, err := migrations.FS.ReadFile("install-0.01.sql")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.ExecScript(ctx, string(install)))
	require.NoError(t, store.ExecScript(ctx, SeedScript))
	return store
}
