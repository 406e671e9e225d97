package sieveengine

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migadu/svbin/pkg/metrics"
)

func mustExecutor(t *testing.T, script string) *SieveExecutor {
	t.Helper()
	ex, err := NewSieveExecutor(script)
	require.NoError(t, err)
	return ex
}

func TestSieveScriptCacheGetPut(t *testing.T) {
	cache := NewSieveScriptCache(10, time.Minute)
	ex := mustExecutor(t, "keep;")

	_, ok := cache.Get("keep;")
	assert.False(t, ok)

	cache.Put("keep;", ex)
	got, ok := cache.Get("keep;")
	require.True(t, ok)
	assert.Same(t, ex, got)
	assert.Equal(t, 1, cache.Size())

	// A second Put for the same script keeps the first executor.
	cache.Put("keep;", mustExecutor(t, "keep;"))
	got, _ = cache.Get("keep;")
	assert.Same(t, ex, got)
}

func TestSieveScriptCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewSieveScriptCache(2, time.Minute)
	cache.Put("a", mustExecutor(t, "keep;"))
	cache.Put("b", mustExecutor(t, "discard;"))

	// Touch "a" so that "b" is the oldest.
	_, ok := cache.Get("a")
	require.True(t, ok)

	cache.Put("c", mustExecutor(t, "stop;"))
	assert.Equal(t, 2, cache.Size())

	_, ok = cache.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
}

func TestSieveScriptCacheTTL(t *testing.T) {
	cache := NewSieveScriptCache(10, 20*time.Millisecond)
	cache.Put("keep;", mustExecutor(t, "keep;"))
	cache.Put("discard;", mustExecutor(t, "discard;"))

	time.Sleep(40 * time.Millisecond)

	_, ok := cache.Get("keep;")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Size())

	cache.CleanExpired()
	assert.Equal(t, 0, cache.Size())
}

func TestSieveScriptCacheClear(t *testing.T) {
	cache := NewSieveScriptCache(10, time.Minute)
	cache.Put("keep;", mustExecutor(t, "keep;"))
	cache.Clear()

	assert.Equal(t, 0, cache.Size())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CacheEntries))
}

func TestSieveScriptCacheGetOrCreate(t *testing.T) {
	cache := NewSieveScriptCache(10, time.Minute)
	calls := 0
	create := func() (*SieveExecutor, error) {
		calls++
		return NewSieveExecutor("keep;")
	}

	first, err := cache.GetOrCreate("keep;", create)
	require.NoError(t, err)
	second, err := cache.GetOrCreate("keep;", create)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	_, err = cache.GetOrCreate("broken", func() (*SieveExecutor, error) {
		return nil, errors.New("boom")
	})
	assert.ErrorContains(t, err, "failed to create sieve executor: boom")
	assert.Equal(t, 1, cache.Size())
}

func TestSieveScriptCacheMetrics(t *testing.T) {
	metrics.CacheOperationsTotal.Reset()
	cache := NewSieveScriptCache(1, time.Minute)

	cache.Get("keep;")
	cache.Put("keep;", mustExecutor(t, "keep;"))
	cache.Get("keep;")
	cache.Put("discard;", mustExecutor(t, "discard;"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheOperationsTotal.WithLabelValues("get", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheOperationsTotal.WithLabelValues("get", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheOperationsTotal.WithLabelValues("put", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheOperationsTotal.WithLabelValues("evict", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheEntries))
}

func TestHashScript(t *testing.T) {
	assert.Equal(t, hashScript("keep;"), hashScript("keep;"))
	assert.NotEqual(t, hashScript("keep;"), hashScript("keep; "))
	assert.Len(t, hashScript(""), 64)
}
