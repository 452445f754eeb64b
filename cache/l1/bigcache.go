package l1

import (
	"context"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/status-im/credential-host/cache"
	"github.com/status-im/credential-host/cache/codec"
	"github.com/status-im/credential-host/models"
	"github.com/status-im/credential-host/scheduler"
)

var _ cache.Cache = (*BigCache)(nil)

// statsInterval is how often capacity gauges are refreshed
const statsInterval = 30 * time.Second

// BigCache is the in-process tier. Entries are dropped after the configured
// life window even when their own TTL has not run out.
type BigCache struct {
	cache          *bigcache.BigCache
	codec          cache.Codec
	logger         cache.Logger
	metrics        cache.MetricsRecorder
	statsScheduler *scheduler.Scheduler
	maxEntrySize   int
}

// Option is a functional option for configuring BigCache
type Option func(*BigCache)

// WithLogger sets the logger for BigCache
func WithLogger(logger cache.Logger) Option {
	return func(bc *BigCache) {
		bc.logger = logger
	}
}

// WithMetrics sets the metrics recorder for BigCache
func WithMetrics(metrics cache.MetricsRecorder) Option {
	return func(bc *BigCache) {
		bc.metrics = metrics
	}
}

// WithCodec sets how entries are encoded; the default is plain JSON
func WithCodec(c cache.Codec) Option {
	return func(bc *BigCache) {
		bc.codec = c
	}
}

// NewBigCache creates the L1 tier. Call Close to release it.
func NewBigCache(cfg *cache.BigCacheConfig, opts ...Option) (*BigCache, error) {
	cfg.ApplyDefaults()

	config := bigcache.DefaultConfig(cfg.LifeWindow)
	config.HardMaxCacheSize = cfg.Size
	config.Verbose = false
	config.MaxEntrySize = cfg.MaxEntrySize
	config.Shards = cfg.Shards

	c, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, err
	}

	bc := &BigCache{
		cache:        c,
		codec:        codec.JSON{},
		logger:       cache.NoopLogger{},
		metrics:      cache.NoopMetrics{},
		maxEntrySize: cfg.MaxEntrySize,
	}

	for _, opt := range opts {
		opt(bc)
	}

	bc.statsScheduler = scheduler.New(statsInterval, func(context.Context) { bc.updateMetrics() }, scheduler.WithImmediate())
	bc.statsScheduler.Start()

	return bc, nil
}

// Get returns the entry under key unless it is missing, corrupt or expired
func (bc *BigCache) Get(key string) (*models.CacheEntry, bool) {
	data, err := bc.cache.Get(key)
	if err != nil {
		return nil, false
	}

	// l1 only ever holds what this process wrote, so an entry that will not
	// decode is damaged and is dropped
	entry, err := bc.codec.Unmarshal(data)
	if err != nil {
		bc.logger.Warn("Dropping undecodable L1 entry", "key", key, "error", err)
		bc.metrics.RecordCacheError("l1", "decode")
		_ = bc.cache.Delete(key)
		return nil, false
	}

	if entry.IsExpired() {
		_ = bc.cache.Delete(key)
		return nil, false
	}

	return entry, true
}

// Set stores val under key. Entries larger than the configured maximum are skipped.
func (bc *BigCache) Set(key string, val []byte, ttl models.TTL) {
	data, err := bc.codec.Marshal(models.NewEntry(val, ttl))
	if err != nil {
		bc.logger.Error("Failed to encode L1 entry", "key", key, "error", err)
		bc.metrics.RecordCacheError("l1", "encode")
		return
	}

	if len(data) > bc.maxEntrySize {
		bc.logger.Warn("Cache entry too large, skipping L1 cache",
			"key", key,
			"size", len(data),
			"max_size", bc.maxEntrySize)
		bc.metrics.RecordCacheError("l1", "entry_too_large")
		return
	}

	if err := bc.cache.Set(key, data); err != nil {
		bc.logger.Error("Failed to set cache entry", "key", key, "error", err)
		bc.metrics.RecordCacheError("l1", "backend")
		return
	}
	bc.metrics.RecordCacheSet("l1", len(data))
}

func (bc *BigCache) Delete(key string) {
	if err := bc.cache.Delete(key); err == nil {
		bc.metrics.RecordCacheDelete("l1")
	}
}

// Len is the number of entries currently held
func (bc *BigCache) Len() int {
	return bc.cache.Len()
}

func (bc *BigCache) Close() error {
	if bc.statsScheduler != nil {
		bc.statsScheduler.Stop()
	}
	return bc.cache.Close()
}

// updateMetrics publishes capacity in bytes and the current entry count
func (bc *BigCache) updateMetrics() {
	capacity := int64(bc.cache.Capacity())
	stats := bc.cache.Stats()
	bc.metrics.UpdateL1CacheCapacity(capacity, stats.Hits+stats.Misses)
	bc.metrics.UpdateCacheKeys("l1", int64(bc.cache.Len()))
}
