package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apien/apien/internal/database"
	"github.com/apien/apien/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "apien", cmd.Use)
	assert.Contains(t, cmd.Long, "APIEN_")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "migrate", "lookup", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	cfgFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "c", cfgFlag.Shorthand)

	for _, name := range []string{"data-dir", "dsn", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "apien version dev (commit: unknown)\n", out)
}

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "migrate", "--data-dir", dir, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "applied install-0.01.sql\napplied update-0.02.sql\nschema version 0.02\n", out)

	out, err = execute(t, "migrate", "--data-dir", dir, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "schema version 0.02\n", out)
}

func TestLookupCommand(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "migrate", "--data-dir", dir, "--log-level", "error")
	require.NoError(t, err)

	cfg := database.DefaultConfig()
	cfg.DSN = filepath.Join(dir, "apien.db")
	store, err := database.Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, store.ExecScript(context.Background(), testutil.SeedScript))
	require.NoError(t, store.Close())

	out, err := execute(t, "lookup", "country_code/usa/indicator_id/2",
		"--data-dir", dir, "--log-level", "error", "--language", "fr")
	require.NoError(t, err)
	assert.Equal(t,
		`{"indicator_value":[["usa","2","2020","20.9"]],"country_name":{"usa":"États-Unis"},"indicator_name":{"2":"PIB"}}`,
		strings.TrimSuffix(out, "\n"))
}

func TestLookupCommand_ValidationError(t *testing.T) {
	_, err := execute(t, "lookup", "year/20x0", "--data-dir", t.TempDir(), "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid value 20x0 provided for resource year.")
}

func TestLookupCommand_InvalidOption(t *testing.T) {
	_, err := execute(t, "lookup", "year/2020", "--data-dir", t.TempDir(), "--log-level", "error", "--structure", "xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "option structure")
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("APIEN_DATA_DIR", "/from/env")
	t.Setenv("APIEN_LOG_LEVEL", "warn")

	cfg, err := loadConfig(&RootOptions{DataDir: "/from/flag"})
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.DataDir)
	assert.Equal(t, "warn", cfg.Log.Level)
}
