package sieveengine

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"github.com/migadu/svbin/pkg/metrics"
)

// SieveScriptCacheEntry is one cached executor.
type SieveScriptCacheEntry struct {
	executor   *SieveExecutor
	lastAccess time.Time
	createdAt  time.Time
}

// SieveScriptCache is an LRU cache of executors keyed by script content,
// with a TTL on every entry.
type SieveScriptCache struct {
	mu          sync.Mutex
	cache       map[string]*SieveScriptCacheEntry
	maxEntries  int
	ttl         time.Duration
	accessOrder []string // least recently used first
}

// NewSieveScriptCache creates a cache holding at most maxEntries executors,
// each for at most ttl. A maxEntries of zero means unbounded.
func NewSieveScriptCache(maxEntries int, ttl time.Duration) *SieveScriptCache {
	return &SieveScriptCache{
		cache:       make(map[string]*SieveScriptCacheEntry),
		maxEntries:  maxEntries,
		ttl:         ttl,
		accessOrder: make([]string, 0, maxEntries),
	}
}

func hashScript(script string) string {
	sum := blake3.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached executor for scriptContent.
func (c *SieveScriptCache) Get(scriptContent string) (*SieveExecutor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := hashScript(scriptContent)
	entry, exists := c.cache[key]
	if !exists {
		metrics.CacheOperationsTotal.WithLabelValues("get", "miss").Inc()
		return nil, false
	}

	if c.ttl > 0 && time.Since(entry.createdAt) > c.ttl {
		c.remove(key)
		metrics.CacheOperationsTotal.WithLabelValues("get", "expired").Inc()
		return nil, false
	}

	entry.lastAccess = time.Now()
	c.updateAccessOrder(key)
	metrics.CacheOperationsTotal.WithLabelValues("get", "hit").Inc()
	return entry.executor, true
}

// Put caches executor for scriptContent. An existing entry is kept and
// only marked as recently used.
func (c *SieveScriptCache) Put(scriptContent string, executor *SieveExecutor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := hashScript(scriptContent)
	now := time.Now()

	if _, exists := c.cache[key]; exists {
		c.updateAccessOrder(key)
		return
	}

	if c.maxEntries > 0 && len(c.cache) >= c.maxEntries {
		c.evictOldest()
	}

	c.cache[key] = &SieveScriptCacheEntry{
		executor:   executor,
		lastAccess: now,
		createdAt:  now,
	}
	c.accessOrder = append(c.accessOrder, key)
	metrics.CacheOperationsTotal.WithLabelValues("put", "ok").Inc()
	metrics.CacheEntries.Set(float64(len(c.cache)))
}

func (c *SieveScriptCache) updateAccessOrder(key string) {
	c.removeFromAccessOrder(key)
	c.accessOrder = append(c.accessOrder, key)
}

func (c *SieveScriptCache) removeFromAccessOrder(key string) {
	for i, k := range c.accessOrder {
		if k == key {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
}

func (c *SieveScriptCache) remove(key string) {
	delete(c.cache, key)
	c.removeFromAccessOrder(key)
	metrics.CacheEntries.Set(float64(len(c.cache)))
}

func (c *SieveScriptCache) evictOldest() {
	if len(c.accessOrder) == 0 {
		return
	}
	oldestKey := c.accessOrder[0]
	delete(c.cache, oldestKey)
	c.accessOrder = c.accessOrder[1:]
	metrics.CacheOperationsTotal.WithLabelValues("evict", "ok").Inc()
}

// Clear removes all entries.
func (c *SieveScriptCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*SieveScriptCacheEntry)
	c.accessOrder = make([]string, 0, c.maxEntries)
	metrics.CacheEntries.Set(0)
}

// Size returns the number of cached entries.
func (c *SieveScriptCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// GetOrCreate returns the cached executor for scriptContent, or builds one
// with create and caches it. Concurrent misses may each call create; the
// first executor stored wins.
func (c *SieveScriptCache) GetOrCreate(scriptContent string, create func() (*SieveExecutor, error)) (*SieveExecutor, error) {
	if executor, found := c.Get(scriptContent); found {
		return executor, nil
	}

	executor, err := create()
	if err != nil {
		return nil, fmt.Errorf("failed to create sieve executor: %w", err)
	}

	c.Put(scriptContent, executor)
	if cached, found := c.peek(scriptContent); found {
		return cached, nil
	}
	return executor, nil
}

func (c *SieveScriptCache) peek(scriptContent string) (*SieveExecutor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[hashScript(scriptContent)]
	if !ok {
		return nil, false
	}
	return entry.executor, true
}

// CleanExpired removes every expired entry.
func (c *SieveScriptCache) CleanExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return
	}
	now := time.Now()
	var keysToRemove []string
	for key, entry := range c.cache {
		if now.Sub(entry.createdAt) > c.ttl {
			keysToRemove = append(keysToRemove, key)
		}
	}
	for _, key := range keysToRemove {
		c.remove(key)
	}
}
