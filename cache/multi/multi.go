// Package multi stacks cache tiers into a single cache.
package multi

import (
	"github.com/status-im/credential-host/cache"
	"github.com/status-im/credential-host/models"
)

var _ cache.LevelAwareCache = (*MultiCache)(nil)

// MultiCache layers tiers in order, fastest first. Reads stop at the first
// tier that has the key; writes and deletes reach every tier, backing tier first.
type MultiCache struct {
	tiers    []cache.Cache
	backfill bool
	logger   cache.Logger
	metrics  cache.MetricsRecorder
}

// Option is a functional option for configuring MultiCache
type Option func(*MultiCache)

// WithLogger sets the logger for MultiCache
func WithLogger(logger cache.Logger) Option {
	return func(mc *MultiCache) {
		mc.logger = logger
	}
}

// WithMetrics sets the recorder used for hit and miss accounting
func WithMetrics(metrics cache.MetricsRecorder) Option {
	return func(mc *MultiCache) {
		mc.metrics = metrics
	}
}

// NewMultiCache stacks tiers. With backfill, a hit in a slower tier is
// copied into the faster ones.
func NewMultiCache(tiers []cache.Cache, backfill bool, opts ...Option) *MultiCache {
	mc := &MultiCache{
		tiers:    tiers,
		backfill: backfill,
		logger:   cache.NoopLogger{},
		metrics:  cache.NoopMetrics{},
	}

	for _, opt := range opts {
		opt(mc)
	}

	return mc
}

// Tiers is the number of stacked tiers
func (mc *MultiCache) Tiers() int {
	return len(mc.tiers)
}

func (mc *MultiCache) Get(key string) (*models.CacheEntry, bool) {
	result := mc.GetWithLevel(key)
	return result.Entry, result.Found
}

// GetWithLevel looks key up tier by tier and reports which one answered
func (mc *MultiCache) GetWithLevel(key string) *models.CacheResult {
	defer mc.metrics.TimeCacheOperation("get", "multi")()

	if len(mc.tiers) == 0 {
		mc.logger.Warn("Lookup on a cache with no tiers", "key", key)
		mc.metrics.RecordCacheMiss()
		return &models.CacheResult{Level: models.CacheLevelMiss}
	}

	for i, tier := range mc.tiers {
		entry, found := tier.Get(key)
		if !found {
			continue
		}
		if i > 0 && mc.backfill {
			mc.fill(key, entry, mc.tiers[:i])
		}

		level := models.CacheLevelFromIndex(i)
		mc.metrics.RecordCacheHit(level.String(), entry.Age())
		return &models.CacheResult{Entry: entry, Found: true, Level: level}
	}

	mc.metrics.RecordCacheMiss()
	return &models.CacheResult{Level: models.CacheLevelMiss}
}

// GetLatest skips the faster tiers and asks the backing one. Faster tiers
// are refilled from the answer when backfill is on; otherwise, and on a miss,
// the key is dropped from them so they cannot keep serving an old copy.
func (mc *MultiCache) GetLatest(key string) *models.CacheResult {
	defer mc.metrics.TimeCacheOperation("get_latest", "multi")()

	if len(mc.tiers) == 0 {
		mc.logger.Warn("Lookup on a cache with no tiers", "key", key)
		mc.metrics.RecordCacheMiss()
		return &models.CacheResult{Level: models.CacheLevelMiss}
	}

	last := len(mc.tiers) - 1
	faster := mc.tiers[:last]

	entry, found := mc.tiers[last].Get(key)
	if !found {
		for _, tier := range faster {
			tier.Delete(key)
		}
		mc.metrics.RecordCacheMiss()
		return &models.CacheResult{Level: models.CacheLevelMiss}
	}

	if len(faster) > 0 {
		if mc.backfill && mc.fillable(entry) {
			mc.fill(key, entry, faster)
		} else {
			for _, tier := range faster {
				tier.Delete(key)
			}
		}
	}

	level := models.CacheLevelFromIndex(last)
	mc.metrics.RecordCacheHit(level.String(), entry.Age())
	return &models.CacheResult{Entry: entry, Found: true, Level: level}
}

func (mc *MultiCache) Set(key string, val []byte, ttl models.TTL) {
	mc.eachBackToFront("set", key, func(tier cache.Cache) {
		tier.Set(key, val, ttl)
	})
}

func (mc *MultiCache) Delete(key string) {
	mc.eachBackToFront("delete", key, func(tier cache.Cache) {
		tier.Delete(key)
	})
}

// eachBackToFront runs fn on the backing tier first so a faster tier never
// holds a value the shared one does not
func (mc *MultiCache) eachBackToFront(op, key string, fn func(cache.Cache)) {
	if len(mc.tiers) == 0 {
		mc.logger.Warn("Write on a cache with no tiers", "operation", op, "key", key)
		return
	}
	for i := len(mc.tiers) - 1; i >= 0; i-- {
		fn(mc.tiers[i])
	}
}

// fill copies entry into tiers with whatever lifetime it has left
func (mc *MultiCache) fill(key string, entry *models.CacheEntry, tiers []cache.Cache) {
	if !mc.fillable(entry) {
		return
	}
	remaining := entry.RemainingTTL()
	for _, tier := range tiers {
		tier.Set(key, entry.Data, remaining)
	}
}

// fillable reports whether entry has a lifetime left to copy. The zero TTL
// means forever, so an entry about to expire must not be copied with it.
func (mc *MultiCache) fillable(entry *models.CacheEntry) bool {
	if entry == nil || entry.IsExpired() {
		return false
	}
	return entry.Persistent() || !entry.RemainingTTL().Forever()
}
