package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/apien/apien/internal/config"
	apierrors "github.com/apien/apien/internal/errors"
	"github.com/apien/apien/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.GRPC.Addr = "127.0.0.1:0"
	cfg.HTTP.ShutdownTimeout = 5 * time.Second
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, WithLogOutput(io.Discard))
	require.NoError(t, err)
	return a
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "redis"
	_, err := New(cfg)
	require.Error(t, err)
	assert.Equal(t, apierrors.CodeInvalidConfig, apierrors.GetCode(err))
}

func TestApp_StartServeStop(t *testing.T) {
	a := newApp(t, testConfig(t))
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Store().ExecScript(ctx, testutil.SeedScript))

	base := "http://" + a.HTTPAddr()
	resp, body := get(t, base+"/country_code/usa/indicator_id/1/year/2020")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t,
		`{"indicator_value":[["usa","1","2020","331.5"]],"country_name":{"usa":"United States"},"indicator_name":{"1":"Population"}}`,
		body)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	resp, _ = get(t, base+"/country_code/usa/indicator_id/1/year/2020")
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	resp, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "apien_schema_version 0.02")

	resp, _ = get(t, base+"/stats")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var logged int
	require.NoError(t, a.Store().QueryRowContext(ctx, "SELECT COUNT(*) FROM request_log").Scan(&logged))
	assert.Equal(t, 2, logged)

	require.NoError(t, a.Stop(ctx))
	_, err := http.Get(base + "/year/2020")
	assert.Error(t, err)
}

func TestApp_GRPCHealthAfterMigration(t *testing.T) {
	a := newApp(t, testConfig(t))
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	conn, err := grpc.NewClient(a.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestApp_MigrationFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Migrations.Source = config.SourceLocal
	cfg.Migrations.Dir = filepath.Join(cfg.DataDir, "sql")
	require.NoError(t, os.MkdirAll(cfg.Migrations.Dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Migrations.Dir, "update-0.02.sql"), []byte("SELECT 1;"), 0644))

	a := newApp(t, cfg)
	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrCategorySetup, apierrors.GetCategory(err))
	assert.Equal(t, apierrors.CodeInstallScriptMissing, apierrors.GetCode(err))
	assert.Empty(t, a.HTTPAddr())
}

func TestApp_StartTwice(t *testing.T) {
	a := newApp(t, testConfig(t))
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	assert.Error(t, a.Start(context.Background()))
}

func TestApp_MigrateAndLookupWithoutListeners(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = config.CacheBackendBolt
	cfg.Cache.Compress = true
	a := newApp(t, cfg)
	defer a.Close()
	ctx := context.Background()

	result, err := a.Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, result.Installed)
	assert.Equal(t, 0.02, result.Version)

	require.NoError(t, a.Store().ExecScript(ctx, testutil.SeedScript))

	first, err := a.Service().Handle(ctx, "country_code/can/year/2020", nil)
	require.NoError(t, err)
	second, err := a.Service().Handle(ctx, "year/2020/country_code/can", nil)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.True(t, bytes.Equal(first.Body, second.Body))
}

func TestApp_LogFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.File = filepath.Join(cfg.DataDir, "log", "apien.log")

	a, err := New(cfg)
	require.NoError(t, err)
	_, err = a.Migrate(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.Log.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "schema up to date")
}
