package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apien/apien/internal/database"
	apierrors "github.com/apien/apien/internal/errors"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join("data", "apien", "apien.db"), filepath.Clean(cfg.Database.DSN))
	assert.Equal(t, SourceEmbedded, cfg.Migrations.Source)
	assert.Equal(t, CacheBackendSQL, cfg.Cache.Backend)
	assert.Equal(t, 30*time.Second, cfg.Database.ConnectTimeout)
	assert.True(t, cfg.RequestLog.Enabled)
}

func TestResolve_KeepsExplicitPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/srv/apien"
	cfg.Database.DSN = "/mnt/facts.db"
	cfg.Resolve()

	assert.Equal(t, "/mnt/facts.db", cfg.Database.DSN)
	assert.Equal(t, "/srv/apien/sql", cfg.Migrations.Dir)
	assert.Equal(t, "/srv/apien/cache.bolt", cfg.Cache.BoltPath)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"relative metrics path", func(c *Config) { c.HTTP.MetricsPath = "metrics" }},
		{"grpc without addr", func(c *Config) { c.GRPC.Addr = "" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"unknown source", func(c *Config) { c.Migrations.Source = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Migrations.Source = SourceS3 }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "redis" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, apierrors.CodeInvalidConfig, apierrors.GetCode(err))
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Driver = string(database.DriverDuckDB)
	cfg.Migrations.Source = SourceS3
	cfg.Migrations.S3.Bucket = "scripts"
	cfg.Cache.Backend = CacheBackendBolt
	cfg.GRPC.Enabled = false
	cfg.GRPC.Addr = ""
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apien.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/apien
http:
  addr: ":8181"
  read_timeout: 5s
database:
  driver: duckdb
migrations:
  source: s3
  s3:
    bucket: scripts
    prefix: sql/
cache:
  backend: bolt
  compress: true
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/apien", cfg.DataDir)
	assert.Equal(t, ":8181", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "/metrics", cfg.HTTP.MetricsPath)
	assert.Equal(t, "duckdb", cfg.Database.Driver)
	assert.Equal(t, "sql/", cfg.Migrations.S3.Prefix)
	assert.Equal(t, CacheBackendBolt, cfg.Cache.Backend)
	assert.True(t, cfg.Cache.Compress)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apien.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "/tmp/x", "log": {"level": "debug"}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", cfg.DataDir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "apien.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APIEN_DATA_DIR", "/env/data")
	t.Setenv("APIEN_HTTP_ADDR", ":9999")
	t.Setenv("APIEN_GRPC_ENABLED", "false")
	t.Setenv("APIEN_DATABASE_CONNECT_TIMEOUT", "5s")
	t.Setenv("APIEN_DATABASE_MAX_OPEN_CONNS", "3")
	t.Setenv("APIEN_CACHE_COMPRESS", "true")
	t.Setenv("APIEN_REQUEST_LOG_ENABLED", "0")
	t.Setenv("APIEN_DATABASE_MAX_IDLE_CONNS", "lots")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, "/env/data", cfg.DataDir)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.False(t, cfg.GRPC.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, 3, cfg.Database.MaxOpenConns)
	assert.Equal(t, 4, cfg.Database.MaxIdleConns)
	assert.True(t, cfg.Cache.Compress)
	assert.False(t, cfg.RequestLog.Enabled)
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.Migrations.Source = SourceLocal
	cfg.Log.File = filepath.Join(root, "log", "apien.log")
	cfg.Resolve()

	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{cfg.DataDir, cfg.Migrations.Dir, filepath.Join(root, "log")} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Migrations.S3.Region = "eu-west-3"
	cfg.Migrations.S3.Endpoint = "http://localhost:9000"
	cfg.Resolve()

	db := cfg.DatabaseOptions()
	assert.Equal(t, database.DriverSQLite, db.Driver)
	assert.Equal(t, cfg.Database.DSN, db.DSN)

	s3 := cfg.S3Options()
	assert.Equal(t, "eu-west-3", s3.Region)
	assert.Equal(t, "http://localhost:9000", s3.Endpoint)

	assert.Equal(t, "info", cfg.LoggerOptions().Level)
}
