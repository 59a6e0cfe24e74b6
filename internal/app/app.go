// Package app wires the apien components together and manages their
// lifecycle: open the store, bring the schema up to date, then serve.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	grpcapi "github.com/apien/apien/internal/api/grpc"
	httpapi "github.com/apien/apien/internal/api/http"
	"github.com/apien/apien/internal/cache"
	"github.com/apien/apien/internal/config"
	"github.com/apien/apien/internal/database"
	"github.com/apien/apien/internal/logger"
	"github.com/apien/apien/internal/lookup"
	"github.com/apien/apien/internal/metrics"
	"github.com/apien/apien/internal/migrate"
	"github.com/apien/apien/internal/observability"
	"github.com/apien/apien/internal/query"
	"github.com/apien/apien/internal/server"
	"github.com/apien/apien/internal/storage"
	"github.com/apien/apien/migrations"
)

// App owns every long-lived component of one apien process.
type App struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	stats    *observability.QueryStats
	shutdown *server.ShutdownManager

	// Opened by Open
	store    *database.Store
	scripts  storage.ObjectStorage
	migrator *migrate.Migrator
	cache    *cache.Cache
	service  *lookup.Service

	// Started by Start
	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpcapi.Server
	grpcListener net.Listener

	mu      sync.Mutex
	opened  bool
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Option configures an App.
type Option func(*options)

type options struct {
	logOutput io.Writer
}

// WithLogOutput sends logs to w instead of stdout or the configured file.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// New validates cfg, creates the directory layout and sets up logging.
// Nothing is opened until Open or Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	logCfg := cfg.LoggerOptions()
	var logFile *os.File
	switch {
	case o.logOutput != nil:
		logCfg.Output = o.logOutput
	case cfg.Log.File != "":
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		logCfg.Output = f
	}
	log := logger.New(logCfg)

	a := &App{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		stats:   observability.NewQueryStats(cfg.Stats.Window),
		shutdown: server.NewShutdownManager(server.ShutdownConfig{
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
			Logger:          log,
		}),
	}
	if logFile != nil {
		a.shutdown.RegisterCloser("log file", logFile)
	}
	return a, nil
}

// Open connects the store and builds the lookup pipeline. Every resource
// it acquires is released by Close or Stop.
func (a *App) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}

	store, err := database.Open(ctx, a.cfg.DatabaseOptions())
	if err != nil {
		return err
	}
	a.store = store
	a.shutdown.RegisterCloser("store", store)
	a.log.Info().
		Str("driver", string(store.Driver())).
		Str("dsn", a.cfg.Database.DSN).
		Msg("store opened")

	a.scripts, err = a.openScripts(ctx)
	if err != nil {
		return fmt.Errorf("failed to open migration scripts: %w", err)
	}
	a.migrator = migrate.New(store, a.scripts,
		migrate.WithLogger(a.log),
		migrate.WithMetrics(a.metrics),
	)

	backend, err := a.openCacheBackend()
	if err != nil {
		return fmt.Errorf("failed to open cache backend: %w", err)
	}
	a.cache = cache.New(backend, cache.Options{
		Compress: a.cfg.Cache.Compress,
		Logger:   a.log,
		Metrics:  a.metrics,
	})
	a.shutdown.RegisterCloser("cache", a.cache)

	executor := query.NewExecutor(store,
		query.WithLogger(a.log),
		query.WithMetrics(a.metrics),
	)
	a.service = lookup.NewService(a.cache, executor,
		lookup.WithStats(a.stats),
		lookup.WithLogger(a.log),
	)

	a.opened = true
	return nil
}

func (a *App) openScripts(ctx context.Context) (storage.ObjectStorage, error) {
	switch a.cfg.Migrations.Source {
	case config.SourceLocal:
		return storage.NewLocalStorage(a.cfg.Migrations.Dir)
	case config.SourceS3:
		s3 := a.cfg.Migrations.S3
		a.log.Info().
			Str("bucket", s3.Bucket).
			Str("prefix", s3.Prefix).
			Str("region", s3.Region).
			Str("endpoint", s3.Endpoint).
			Msg("reading migration scripts from s3")
		return storage.NewS3Storage(ctx, s3.Bucket, s3.Prefix, a.cfg.S3Options())
	default:
		return storage.NewFSStorage(migrations.FS, config.SourceEmbedded), nil
	}
}

func (a *App) openCacheBackend() (cache.Backend, error) {
	if a.cfg.Cache.Backend == config.CacheBackendBolt {
		a.log.Info().Str("path", a.cfg.Cache.BoltPath).Msg("using bolt cache backend")
		return cache.OpenBolt(a.cfg.Cache.BoltPath)
	}
	return cache.NewSQLBackend(a.store), nil
}

// Migrate brings the schema up to date. It runs at most once per App.
func (a *App) Migrate(ctx context.Context) (migrate.Result, error) {
	if err := a.Open(ctx); err != nil {
		return migrate.Result{}, err
	}
	return a.migrator.Run(ctx)
}

// Service returns the lookup pipeline. Open must have succeeded.
func (a *App) Service() *lookup.Service {
	return a.service
}

// Store returns the relational store. Open must have succeeded.
func (a *App) Store() *database.Store {
	return a.store
}

// Start opens resources, migrates, then starts the HTTP and gRPC
// listeners. No listener accepts connections before the schema is
// current. A failure releases everything acquired so far.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	if err := a.start(ctx); err != nil {
		a.shutdown.Shutdown(context.Background(), "startup failed")
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return err
	}
	return nil
}

func (a *App) start(ctx context.Context) error {
	result, err := a.Migrate(ctx)
	if err != nil {
		return err
	}
	a.log.Info().
		Bool("installed", result.Installed).
		Int("applied", len(result.Applied)).
		Str("version", migrate.FormatVersion(result.Version)).
		Msg("schema ready")

	if err := a.listen(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	a.group = g

	g.Go(func() error {
		a.log.LogServerStart("http", a.httpListener.Addr().String())
		if err := a.httpServer.Serve(a.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.grpcServer != nil {
		g.Go(func() error {
			if err := a.grpcServer.Serve(a.grpcListener); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		a.grpcServer.SetServing(true)
	}

	g.Go(func() error {
		a.pruneStats(gctx)
		return nil
	})

	// A failed listener or Stop both end here.
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown.Shutdown(context.Background(), "stopping")
	})

	a.log.Info().Str("http", a.httpListener.Addr().String()).Msg("apien started")
	return nil
}

// listen binds every listener so address errors surface from Start.
func (a *App) listen() error {
	handler := httpapi.NewRouter(httpapi.RouterConfig{
		Lookup:      httpapi.NewLookupHandler(a.service, a.lookupOptions()...),
		Stats:       httpapi.NewStatsHandler(a.stats, a.cache),
		Metrics:     a.metrics,
		MetricsPath: a.cfg.HTTP.MetricsPath,
		Wrap:        server.ShutdownMiddleware(a.shutdown),
		Logger:      a.log,
	})

	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on http address: %w", err)
	}
	a.httpListener = lis
	a.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	if a.cfg.GRPC.Enabled {
		glis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
		if err != nil {
			lis.Close()
			return fmt.Errorf("failed to listen on grpc address: %w", err)
		}
		a.grpcListener = glis
		a.grpcServer = grpcapi.NewServer(a.log)
		a.shutdown.OnShutdownStart(func() { a.grpcServer.SetServing(false) })
		a.shutdown.RegisterCloser("grpc", a.grpcServer)
	}

	a.shutdown.RegisterCloser("http", server.HTTPServerCloser(a.httpServer, a.cfg.HTTP.ShutdownTimeout))
	return nil
}

func (a *App) lookupOptions() []httpapi.LookupOption {
	opts := []httpapi.LookupOption{httpapi.WithHandlerLogger(a.log)}
	if a.cfg.RequestLog.Enabled {
		opts = append(opts, httpapi.WithRequestLog(a.store))
	}
	return opts
}

func (a *App) pruneStats(ctx context.Context) {
	interval := a.cfg.Stats.Window / 4
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.stats.Prune()
		}
	}
}

// HTTPAddr returns the bound HTTP address once started.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address once started, or "" when gRPC is
// disabled.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Wait blocks until the listeners stop and returns the first failure.
func (a *App) Wait() error {
	if a.group == nil {
		return nil
	}
	return a.group.Wait()
}

// WaitForShutdown blocks until SIGTERM, SIGINT or ctx cancellation, then
// drains and releases everything.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}

// Stop shuts the app down and waits for every listener to return.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx, "stop requested")
	if a.cancel != nil {
		a.cancel()
	}
	if waitErr := a.Wait(); waitErr != nil {
		return waitErr
	}
	return err
}

// Close releases resources acquired by Open when the app was never
// started.
func (a *App) Close() error {
	return a.shutdown.Shutdown(context.Background(), "closed")
}
