// Package metrics provides Prometheus metrics for apien
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for apien. Each instance owns its
// registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	RequestsInFlight prometheus.Gauge

	// Cache metrics
	CacheLookupsTotal  *prometheus.CounterVec
	CacheStoreFailures prometheus.Counter
	CacheStoresTotal   prometheus.Counter

	// Database metrics
	DbQueryDuration *prometheus.HistogramVec
	DbRowsReturned  prometheus.Histogram

	// Migration metrics
	MigrationsApplied prometheus.Counter
	SchemaVersion     prometheus.Gauge

	// Server metrics
	ServerStartTime time.Time
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:        reg,
		ServerStartTime: time.Now(),
	}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apien_requests_total",
			Help: "Total number of lookup requests by status code",
		},
		[]string{"status"},
	)

	m.RequestDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apien_request_duration_seconds",
			Help:    "Duration of lookup requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.RequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "apien_requests_in_flight",
			Help: "Number of lookup requests currently being processed",
		},
	)

	m.CacheLookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apien_cache_lookups_total",
			Help: "Response cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	m.CacheStoresTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "apien_cache_stores_total",
			Help: "Successful response cache writes",
		},
	)

	m.CacheStoreFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "apien_cache_store_failures_total",
			Help: "Response cache writes that failed and were discarded",
		},
	)

	m.DbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apien_db_query_duration_seconds",
			Help:    "Duration of database statements in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.DbRowsReturned = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apien_db_rows_returned",
			Help:    "Rows returned per indicator query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	m.MigrationsApplied = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "apien_migrations_applied_total",
			Help: "Migration scripts applied by this process",
		},
	)

	m.SchemaVersion = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "apien_schema_version",
			Help: "Current database schema version",
		},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "apien_server_uptime_seconds",
			Help: "Seconds since the server started",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest records a completed lookup request.
func (m *Metrics) RecordRequest(status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.RequestDuration.Observe(duration.Seconds())
}

// RecordCacheLookup records a cache lookup result: "hit", "miss" or "error".
func (m *Metrics) RecordCacheLookup(result string) {
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordDbQuery records a database statement duration.
func (m *Metrics) RecordDbQuery(operation string, duration time.Duration) {
	m.DbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
