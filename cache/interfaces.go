// Package cache is the tiered byte store behind the credential values store:
// an in-process bigcache tier (l1) in front of KeyDB/Redis (l2), combined by multi.
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/status-im/credential-host/logging"
	"github.com/status-im/credential-host/models"
)

//go:generate mockgen -package=mock -source=interfaces.go -destination=mock/cache.go

// Cache interface defines the contract for cache implementations
type Cache interface {
	Get(key string) (*models.CacheEntry, bool)
	Set(key string, val []byte, ttl models.TTL)
	Delete(key string)
}

// Codec converts entries to and from the bytes a tier stores
type Codec interface {
	Marshal(entry models.CacheEntry) ([]byte, error)
	Unmarshal(data []byte) (*models.CacheEntry, error)
}

// LevelAwareCache reports which tier answered a lookup
type LevelAwareCache interface {
	Cache
	GetWithLevel(key string) *models.CacheResult
	// GetLatest reads the backing tier only and brings the faster tiers in line with it
	GetLatest(key string) *models.CacheResult
}

// KeyDbClient defines the interface for KeyDB/Redis client operations
type KeyDbClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Logger is the module-wide structured logger
type Logger = logging.Logger

// NoopLogger discards all log messages
type NoopLogger = logging.NoopLogger

// MetricsRecorder defines the interface for recording cache metrics
type MetricsRecorder interface {
	RecordCacheError(level, kind string)
	UpdateL1CacheCapacity(capacity, used int64)
	UpdateCacheKeys(level string, count int64)
	RecordCacheHit(level string, itemAge time.Duration)
	RecordCacheMiss()
	RecordCacheSet(level string, dataSize int)
	RecordCacheDelete(level string)
	TimeCacheOperation(operation, level string) func()
}

// NoopMetrics is a no-operation metrics recorder that discards all metrics
type NoopMetrics struct{}

func (NoopMetrics) RecordCacheError(level, kind string)                {}
func (NoopMetrics) UpdateL1CacheCapacity(capacity, used int64)         {}
func (NoopMetrics) UpdateCacheKeys(level string, count int64)          {}
func (NoopMetrics) RecordCacheHit(level string, itemAge time.Duration) {}
func (NoopMetrics) RecordCacheMiss()                                   {}
func (NoopMetrics) RecordCacheSet(level string, dataSize int)          {}
func (NoopMetrics) RecordCacheDelete(level string)                     {}
func (NoopMetrics) TimeCacheOperation(operation, level string) func()  { return func() {} }
