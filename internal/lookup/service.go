// Package lookup runs the request pipeline: validate, consult the response
// cache, and on a miss query the store, shape the rows and populate the
// cache. Rendering happens last, from the canonical payload bytes.
package lookup

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/apien/apien/internal/cache"
	apierrors "github.com/apien/apien/internal/errors"
	"github.com/apien/apien/internal/logger"
	"github.com/apien/apien/internal/observability"
	"github.com/apien/apien/internal/query"
	"github.com/apien/apien/internal/request"
	"github.com/apien/apien/internal/shape"
)

// Cache is the response cache the service reads and populates.
type Cache interface {
	Lookup(ctx context.Context, fp cache.Fingerprint) ([]byte, bool, error)
	Store(ctx context.Context, fp cache.Fingerprint, payload []byte)
}

// Executor runs a built statement.
type Executor interface {
	Execute(ctx context.Context, st query.Statement) ([]query.Row, error)
}

// BuildFunc assembles the statement for a request.
type BuildFunc func(filters request.FilterSet, language string) (query.Statement, error)

// ShapeFunc turns rows into a payload.
type ShapeFunc func(rows []query.Row, structure request.Structure) (*shape.Payload, error)

// Request is a validated request with its fingerprint computed at most once.
type Request struct {
	*request.Request

	fpOnce sync.Once
	fp     cache.Fingerprint
}

// NewRequest wraps a validated request.
func NewRequest(r *request.Request) *Request {
	return &Request{Request: r}
}

// Fingerprint returns the request's cache key. Repeated calls return the
// same value without recomputing it.
func (r *Request) Fingerprint() cache.Fingerprint {
	r.fpOnce.Do(func() {
		r.fp = cache.Compute(r.Canonical())
	})
	return r.fp
}

// Response is a rendered lookup result.
type Response struct {
	Body        []byte
	ContentType string
	// Encoding is "zlib" for compressed bodies.
	Encoding string
	Mode     shape.Mode
	CacheHit bool
}

// Service owns one pipeline. It is safe for concurrent use.
type Service struct {
	cache Cache
	exec  Executor
	build BuildFunc
	shape ShapeFunc
	stats *observability.QueryStats
	log   *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBuilder replaces the statement builder.
func WithBuilder(fn BuildFunc) Option {
	return func(s *Service) { s.build = fn }
}

// WithShaper replaces the result shaper.
func WithShaper(fn ShapeFunc) Option {
	return func(s *Service) { s.shape = fn }
}

// WithStats records filter usage and latency.
func WithStats(qs *observability.QueryStats) Option {
	return func(s *Service) { s.stats = qs }
}

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a pipeline over c and exec.
func NewService(c Cache, exec Executor, opts ...Option) *Service {
	s := &Service{
		cache: c,
		exec:  exec,
		build: query.Build,
		shape: shape.Shape,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Component("lookup")
	return s
}

// Handle validates path segments and options, then runs Lookup.
func (s *Service) Handle(ctx context.Context, path string, raw url.Values) (*Response, error) {
	req, err := request.ParsePath(path, raw)
	if err != nil {
		return nil, err
	}
	return s.Lookup(ctx, NewRequest(req))
}

// Lookup runs the pipeline for a validated request. A cache hit never
// reaches the builder, the store or the shaper. A failed cache write does
// not fail the request.
func (s *Service) Lookup(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	fp := req.Fingerprint()

	canonical, hit, err := s.cache.Lookup(ctx, fp)
	if err != nil {
		return nil, err
	}

	if !hit {
		canonical, err = s.compute(ctx, req)
		if err != nil {
			return nil, err
		}
		s.cache.Store(ctx, fp, canonical)
	}

	mode := shape.ModeFor(req.Options)
	rendered, err := shape.Render(mode, canonical)
	if err != nil {
		return nil, apierrors.NewInternalError("failed to render response", err)
	}

	if s.stats != nil {
		filters, _ := req.Canonical()
		s.stats.RecordFilters(filters)
		outcome := observability.OutcomeMiss
		if hit {
			outcome = observability.OutcomeHit
		}
		s.stats.RecordLatency(outcome, time.Since(start))
	}

	return &Response{
		Body:        rendered.Body,
		ContentType: rendered.ContentType,
		Encoding:    rendered.Encoding,
		Mode:        mode,
		CacheHit:    hit,
	}, nil
}

// compute builds, executes and shapes, returning canonical payload bytes.
func (s *Service) compute(ctx context.Context, req *Request) ([]byte, error) {
	st, err := s.build(req.Filters, req.Options.Language)
	if err != nil {
		return nil, err
	}

	rows, err := s.exec.Execute(ctx, st)
	if err != nil {
		return nil, err
	}

	payload, err := s.shape(rows, req.Options.Structure)
	if err != nil {
		return nil, apierrors.NewInternalError("failed to shape result", err)
	}
	if payload.Empty() {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("No data was found for the request %s", req.Path))
	}

	canonical, err := shape.Encode(payload)
	if err != nil {
		return nil, apierrors.NewInternalError("failed to encode result", err)
	}
	return canonical, nil
}
