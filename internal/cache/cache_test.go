package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/apien/apien/internal/errors"
	"github.com/apien/apien/internal/metrics"
	storetest "github.com/apien/apien/internal/testutil"
)

type failingBackend struct {
	getErr, putErr error
}

func (f *failingBackend) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	return nil, false, f.getErr
}

func (f *failingBackend) PutIfAbsent(ctx context.Context, key, value []byte) error {
	return f.putErr
}

func (f *failingBackend) Close() error { return nil }

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "cache.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]Backend{
		"sql":  NewSQLBackend(storetest.SeededStore(t)),
		"bolt": bolt,
	}
}

func TestBackends_PutIfAbsent(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := Compute(map[string][]string{"year": {"2020"}}, nil).Bytes()

			_, ok, err := b.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, b.PutIfAbsent(ctx, key, []byte("first")))
			require.NoError(t, b.PutIfAbsent(ctx, key, []byte("second")))

			got, ok, err := b.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("first"), got)
		})
	}
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, compress := range []bool{false, true} {
		for name, b := range backends(t) {
			t.Run(name, func(t *testing.T) {
				c := New(b, Options{Compress: compress})
				fp := Compute(map[string][]string{"country_code": {"usa"}}, defaultOptions())

				_, ok, err := c.Lookup(ctx, fp)
				require.NoError(t, err)
				assert.False(t, ok)

				payload := []byte(`{"indicator_value":[["usa","1","2020","331.5"]]}`)
				c.Store(ctx, fp, payload)

				got, ok, err := c.Lookup(ctx, fp)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, payload, got)

				hits, misses, stores, failures := c.Stats()
				assert.Equal(t, int64(1), hits)
				assert.Equal(t, int64(1), misses)
				assert.Equal(t, int64(1), stores)
				assert.Equal(t, int64(0), failures)
				assert.InDelta(t, 50.0, c.HitRate(), 0.001)
			})
		}
	}
}

func TestCache_ReadsEntriesWrittenWithOtherCompression(t *testing.T) {
	ctx := context.Background()
	backend := NewSQLBackend(storetest.SeededStore(t))
	fp := Compute(nil, defaultOptions())

	New(backend, Options{Compress: true}).Store(ctx, fp, []byte("payload"))

	got, ok, err := New(backend, Options{Compress: false}).Lookup(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestCache_StoreFailureIsSwallowed(t *testing.T) {
	m := metrics.New()
	c := New(&failingBackend{putErr: errors.New("disk full")}, Options{Metrics: m})

	c.Store(context.Background(), Compute(nil, nil), []byte("x"))

	_, _, stores, failures := c.Stats()
	assert.Equal(t, int64(0), stores)
	assert.Equal(t, int64(1), failures)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheStoreFailures))
}

func TestCache_LookupFailureIsCacheError(t *testing.T) {
	m := metrics.New()
	c := New(&failingBackend{getErr: errors.New("locked")}, Options{Metrics: m})

	_, _, err := c.Lookup(context.Background(), Compute(nil, nil))
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrCategoryCache, apierrors.GetCategory(err))
	assert.Equal(t, 500, apierrors.HTTPStatus(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("error")))
}

func TestCache_ConcurrentStoresSameKey(t *testing.T) {
	ctx := context.Background()
	c := New(NewSQLBackend(storetest.SeededStore(t)), Options{})
	fp := Compute(map[string][]string{"year": {"2020"}}, defaultOptions())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Store(ctx, fp, []byte("same"))
		}()
	}
	wg.Wait()

	_, _, stores, failures := c.Stats()
	assert.Equal(t, int64(8), stores+failures)

	got, ok, err := c.Lookup(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("same"), got)
}

func TestDecode_RejectsUnknownEncoding(t *testing.T) {
	_, err := decode([]byte{0x7f, 'x'})
	assert.Error(t, err)
	_, err = decode(nil)
	assert.Error(t, err)
}
