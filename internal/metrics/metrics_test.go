package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := New()
	b := New()

	a.RecordCacheLookup("hit")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.CacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CacheLookupsTotal.WithLabelValues("hit")))
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()
	m.RecordRequest(200, 10*time.Millisecond)
	m.RecordRequest(404, time.Millisecond)
	m.RecordRequest(200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("404")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SchemaVersion.Set(0.03)
	m.CacheStoreFailures.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "apien_schema_version 0.03"))
	assert.True(t, strings.Contains(body, "apien_cache_store_failures_total 1"))
	assert.True(t, strings.Contains(body, "apien_server_uptime_seconds"))
}
