package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/golang/snappy"

	apierrors "github.com/apien/apien/internal/errors"
	"github.com/apien/apien/internal/logger"
	"github.com/apien/apien/internal/metrics"
)

// Stored values carry a one-byte header naming their encoding, so entries
// written with and without compression can be read by either setting.
const (
	encodingPlain  byte = 0x00
	encodingSnappy byte = 0x01
)

// Stats holds cache counters for observability.
type Stats struct {
	Hits          atomic.Int64
	Misses        atomic.Int64
	Stores        atomic.Int64
	StoreFailures atomic.Int64
}

// Options configures a Cache.
type Options struct {
	// Compress stores values snappy-compressed.
	Compress bool
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// Cache is the response cache. It is safe for concurrent use; concurrent
// misses for one fingerprint may both store, and the second write is
// ignored by the backend.
type Cache struct {
	backend  Backend
	compress bool
	log      *logger.Logger
	metrics  *metrics.Metrics
	stats    Stats
}

// New creates a cache over backend.
func New(backend Backend, opts Options) *Cache {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		backend:  backend,
		compress: opts.Compress,
		log:      log.Component("cache"),
		metrics:  opts.Metrics,
	}
}

// Lookup returns the payload stored for fp. A backend failure is returned
// as a CACHE error and fails the request.
func (c *Cache) Lookup(ctx context.Context, fp Fingerprint) ([]byte, bool, error) {
	raw, ok, err := c.backend.Get(ctx, fp.Bytes())
	if err != nil {
		c.record("error")
		return nil, false, apierrors.NewCacheError(apierrors.CodeLookupFailed, "cache lookup failed", err)
	}
	if !ok {
		c.stats.Misses.Add(1)
		c.record("miss")
		return nil, false, nil
	}

	payload, err := decode(raw)
	if err != nil {
		c.record("error")
		return nil, false, apierrors.NewCacheError(apierrors.CodeLookupFailed, "cache entry unreadable", err)
	}
	c.stats.Hits.Add(1)
	c.record("hit")
	return payload, true, nil
}

// Store persists payload under fp. It never fails the caller: errors are
// logged and counted, then discarded.
func (c *Cache) Store(ctx context.Context, fp Fingerprint, payload []byte) {
	if err := c.backend.PutIfAbsent(ctx, fp.Bytes(), c.encode(payload)); err != nil {
		c.stats.StoreFailures.Add(1)
		if c.metrics != nil {
			c.metrics.CacheStoreFailures.Inc()
		}
		c.log.Warn().Err(err).Str("fingerprint", fp.String()).Msg("cache store failed")
		return
	}
	c.stats.Stores.Add(1)
	if c.metrics != nil {
		c.metrics.CacheStoresTotal.Inc()
	}
}

// Stats returns current counters.
func (c *Cache) Stats() (hits, misses, stores, storeFailures int64) {
	return c.stats.Hits.Load(), c.stats.Misses.Load(), c.stats.Stores.Load(), c.stats.StoreFailures.Load()
}

// HitRate returns the hit rate as a percentage.
func (c *Cache) HitRate() float64 {
	hits := c.stats.Hits.Load()
	total := hits + c.stats.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}

func (c *Cache) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(result)
	}
}

func (c *Cache) encode(payload []byte) []byte {
	if !c.compress {
		out := make([]byte, 0, len(payload)+1)
		out = append(out, encodingPlain)
		return append(out, payload...)
	}
	enc := snappy.Encode(nil, payload)
	out := make([]byte, 0, len(enc)+1)
	out = append(out, encodingSnappy)
	return append(out, enc...)
}

func decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty entry")
	}
	switch raw[0] {
	case encodingPlain:
		return raw[1:], nil
	case encodingSnappy:
		return snappy.Decode(nil, raw[1:])
	default:
		return nil, fmt.Errorf("unknown entry encoding 0x%02x", raw[0])
	}
}
