// Package memory is a process-local tier that never evicts. It backs the
// chain when no shared tier is configured, so a full or aged-out l1 cannot
// lose the only copy of a credential.
package memory

import (
	"sync"

	"github.com/status-im/credential-host/cache"
	"github.com/status-im/credential-host/models"
)

var _ cache.Cache = (*Cache)(nil)

// Cache holds entries in a map until they expire or are deleted
type Cache struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
	metrics cache.MetricsRecorder
}

type Option func(*Cache)

// WithMetrics sets the metrics recorder for the tier
func WithMetrics(metrics cache.MetricsRecorder) Option {
	return func(c *Cache) {
		c.metrics = metrics
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]models.CacheEntry),
		metrics: cache.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the entry under key. Expired entries are removed.
func (c *Cache) Get(key string) (*models.CacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if entry.IsExpired() {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && current.IsExpired() {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	entry.Data = append([]byte(nil), entry.Data...)
	return &entry, true
}

// Set stores a private copy of val
func (c *Cache) Set(key string, val []byte, ttl models.TTL) {
	entry := models.NewEntry(append([]byte(nil), val...), ttl)

	c.mu.Lock()
	c.entries[key] = entry
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.RecordCacheSet("memory", len(val))
	c.metrics.UpdateCacheKeys("memory", int64(n))
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	n := len(c.entries)
	c.mu.Unlock()

	if ok {
		c.metrics.RecordCacheDelete("memory")
		c.metrics.UpdateCacheKeys("memory", int64(n))
	}
}

// Len is the number of entries held, expired ones included until they are read
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
