// Package config provides configuration for the apien service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/apien/apien/internal/database"
	apierrors "github.com/apien/apien/internal/errors"
	"github.com/apien/apien/internal/logger"
	"github.com/apien/apien/internal/storage"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "APIEN_"

// Migration script sources.
const (
	SourceEmbedded = "embedded"
	SourceLocal    = "local"
	SourceS3       = "s3"
)

// Cache backends.
const (
	CacheBackendSQL  = "sql"
	CacheBackendBolt = "bolt"
)

// Config holds the configuration of one apien process.
type Config struct {
	// DataDir is the base directory for the store, cache and scripts
	DataDir string `json:"data_dir" yaml:"data_dir"`

	HTTP       HTTPConfig       `json:"http" yaml:"http"`
	GRPC       GRPCConfig       `json:"grpc" yaml:"grpc"`
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Migrations MigrationsConfig `json:"migrations" yaml:"migrations"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	Log        LogConfig        `json:"log" yaml:"log"`
	RequestLog RequestLogConfig `json:"request_log" yaml:"request_log"`
	Stats      StatsConfig      `json:"stats" yaml:"stats"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the lookup API listen address
	Addr string `json:"addr" yaml:"addr"`

	// MetricsPath exposes Prometheus metrics; empty disables it
	MetricsPath string `json:"metrics_path" yaml:"metrics_path"`

	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// GRPCConfig holds gRPC server configuration. The gRPC listener serves
// health checks and reflection only.
type GRPCConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// DatabaseConfig holds relational store configuration.
type DatabaseConfig struct {
	// Driver is sqlite3 or duckdb
	Driver string `json:"driver" yaml:"driver"`

	// DSN defaults to <data_dir>/apien.db
	DSN string `json:"dsn" yaml:"dsn"`

	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// MigrationsConfig selects where install and update scripts are read from.
type MigrationsConfig struct {
	// Source is embedded, local or s3
	Source string `json:"source" yaml:"source"`

	// Dir is the script directory for the local source, default <data_dir>/sql
	Dir string `json:"dir" yaml:"dir"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 script source configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	// Backend is sql (the store's cache table) or bolt
	Backend string `json:"backend" yaml:"backend"`

	// BoltPath defaults to <data_dir>/cache.bolt
	BoltPath string `json:"bolt_path" yaml:"bolt_path"`

	// Compress stores entries snappy-compressed
	Compress bool `json:"compress" yaml:"compress"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Caller bool   `json:"caller" yaml:"caller"`

	// File receives log output instead of stdout when set
	File string `json:"file" yaml:"file"`
}

// RequestLogConfig controls the per-request audit table.
type RequestLogConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// StatsConfig controls the in-process query statistics.
type StatsConfig struct {
	// Window is how long an unused dimension stays in the statistics
	Window time.Duration `json:"window" yaml:"window"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	db := database.DefaultConfig()
	return &Config{
		DataDir: "./data/apien",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			MetricsPath:     "/metrics",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Database: DatabaseConfig{
			Driver:          string(db.Driver),
			ConnectTimeout:  db.ConnectTimeout,
			MaxOpenConns:    db.MaxOpenConns,
			MaxIdleConns:    db.MaxIdleConns,
			ConnMaxLifetime: db.ConnMaxLifetime,
		},
		Migrations: MigrationsConfig{
			Source: SourceEmbedded,
		},
		Cache: CacheConfig{
			Backend: CacheBackendSQL,
		},
		Log: LogConfig{
			Level: "info",
		},
		RequestLog: RequestLogConfig{
			Enabled: true,
		},
		Stats: StatsConfig{
			Window: time.Hour,
		},
	}
}

// Resolve fills paths left empty from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/apien"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = filepath.Join(c.DataDir, "apien.db")
	}
	if c.Migrations.Dir == "" {
		c.Migrations.Dir = filepath.Join(c.DataDir, "sql")
	}
	if c.Cache.BoltPath == "" {
		c.Cache.BoltPath = filepath.Join(c.DataDir, "cache.bolt")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return invalid("data_dir is required")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr is required")
	}
	if c.HTTP.MetricsPath != "" && !strings.HasPrefix(c.HTTP.MetricsPath, "/") {
		return invalid("http.metrics_path must start with /, got %q", c.HTTP.MetricsPath)
	}
	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return invalid("grpc.addr is required when grpc is enabled")
	}

	switch database.Driver(c.Database.Driver) {
	case database.DriverSQLite, database.DriverDuckDB:
	default:
		return invalid("invalid database driver: %s (must be sqlite3 or duckdb)", c.Database.Driver)
	}

	switch c.Migrations.Source {
	case SourceEmbedded, SourceLocal:
	case SourceS3:
		if c.Migrations.S3.Bucket == "" {
			return invalid("migrations.s3.bucket is required when the script source is s3")
		}
	default:
		return invalid("invalid migrations source: %s (must be embedded, local or s3)", c.Migrations.Source)
	}

	switch c.Cache.Backend {
	case CacheBackendSQL, CacheBackendBolt:
	default:
		return invalid("invalid cache backend: %s (must be sql or bolt)", c.Cache.Backend)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("invalid log level: %s", c.Log.Level)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return apierrors.NewSetupError(apierrors.CodeInvalidConfig, fmt.Sprintf(format, args...), nil)
}

// DatabaseOptions returns the store connection options.
func (c *Config) DatabaseOptions() database.Config {
	return database.Config{
		Driver:          database.Driver(c.Database.Driver),
		DSN:             c.Database.DSN,
		ConnectTimeout:  c.Database.ConnectTimeout,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// S3Options returns the S3 client options for the script source.
func (c *Config) S3Options() storage.S3Config {
	cfg := storage.DefaultS3Config()
	if c.Migrations.S3.Region != "" {
		cfg.Region = c.Migrations.S3.Region
	}
	cfg.Endpoint = c.Migrations.S3.Endpoint
	cfg.UsePathStyle = c.Migrations.S3.UsePathStyle
	return cfg
}

// LoggerOptions returns the logger configuration. The output writer is
// left to the caller.
func (c *Config) LoggerOptions() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Pretty:     c.Log.Pretty,
		WithCaller: c.Log.Caller,
	}
}

// LoadFromFile loads configuration from a YAML or JSON file over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides cfg from APIEN_* environment variables. Values
// that fail to parse are ignored.
func LoadFromEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("DATA_DIR", &cfg.DataDir)

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("HTTP_METRICS_PATH", &cfg.HTTP.MetricsPath)
	duration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	duration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	duration("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)

	str("GRPC_ADDR", &cfg.GRPC.Addr)
	boolean("GRPC_ENABLED", &cfg.GRPC.Enabled)

	str("DATABASE_DRIVER", &cfg.Database.Driver)
	str("DATABASE_DSN", &cfg.Database.DSN)
	duration("DATABASE_CONNECT_TIMEOUT", &cfg.Database.ConnectTimeout)
	integer("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	integer("DATABASE_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)

	str("MIGRATIONS_SOURCE", &cfg.Migrations.Source)
	str("MIGRATIONS_DIR", &cfg.Migrations.Dir)
	str("S3_BUCKET", &cfg.Migrations.S3.Bucket)
	str("S3_PREFIX", &cfg.Migrations.S3.Prefix)
	str("S3_REGION", &cfg.Migrations.S3.Region)
	str("S3_ENDPOINT", &cfg.Migrations.S3.Endpoint)
	boolean("S3_USE_PATH_STYLE", &cfg.Migrations.S3.UsePathStyle)

	str("CACHE_BACKEND", &cfg.Cache.Backend)
	str("CACHE_BOLT_PATH", &cfg.Cache.BoltPath)
	boolean("CACHE_COMPRESS", &cfg.Cache.Compress)

	str("LOG_LEVEL", &cfg.Log.Level)
	boolean("LOG_PRETTY", &cfg.Log.Pretty)
	boolean("LOG_CALLER", &cfg.Log.Caller)
	str("LOG_FILE", &cfg.Log.File)

	boolean("REQUEST_LOG_ENABLED", &cfg.RequestLog.Enabled)
	duration("STATS_WINDOW", &cfg.Stats.Window)
}

// EnsureDirectories creates the data, script and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Migrations.Source == SourceLocal {
		dirs = append(dirs, c.Migrations.Dir)
	}
	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}
	if c.Cache.Backend == CacheBackendBolt {
		dirs = append(dirs, filepath.Dir(c.Cache.BoltPath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
