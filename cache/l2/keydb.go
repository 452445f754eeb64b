package l2

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"

	"github.com/status-im/credential-host/cache"
	"github.com/status-im/credential-host/cache/codec"
	"github.com/status-im/credential-host/models"
)

var _ cache.Cache = (*KeyDBCache)(nil)

// KeyDBCache is the shared tier, backed by KeyDB or Redis. Entries written
// with the zero TTL are stored without a key expiry. Keys are prefixed with
// the configured namespace so several hosts can share one database.
type KeyDBCache struct {
	client  cache.KeyDbClient
	cfg     *cache.KeyDBConfig
	codec   cache.Codec
	logger  cache.Logger
	metrics cache.MetricsRecorder
}

// Option is a functional option for configuring KeyDBCache
type Option func(*KeyDBCache)

// WithLogger sets the logger for KeyDBCache
func WithLogger(logger cache.Logger) Option {
	return func(kc *KeyDBCache) {
		kc.logger = logger
	}
}

// WithMetrics sets the metrics recorder for KeyDBCache
func WithMetrics(metrics cache.MetricsRecorder) Option {
	return func(kc *KeyDBCache) {
		kc.metrics = metrics
	}
}

// WithCodec sets how entries are encoded; the default is plain JSON
func WithCodec(c cache.Codec) Option {
	return func(kc *KeyDBCache) {
		kc.codec = c
	}
}

// NewKeyDBCache creates a KeyDBCache on top of client
func NewKeyDBCache(cfg *cache.KeyDBConfig, client cache.KeyDbClient, opts ...Option) *KeyDBCache {
	cfg.ApplyDefaults()

	kc := &KeyDBCache{
		client:  client,
		cfg:     cfg,
		codec:   codec.JSON{},
		logger:  cache.NoopLogger{},
		metrics: cache.NoopMetrics{},
	}

	for _, opt := range opts {
		opt(kc)
	}

	return kc
}

// Get returns the entry under key. Expired entries are removed. Entries that
// do not decode are reported and left alone: another host holding the right
// key may still read them.
func (kc *KeyDBCache) Get(key string) (*models.CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), kc.cfg.Connection.ReadTimeout)
	defer cancel()

	key = kc.cfg.Key(key)
	data, err := kc.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			kc.logger.Warn("L2 cache get failed", "key", key, "error", err)
			kc.metrics.RecordCacheError("l2", "backend")
		}
		return nil, false
	}

	entry, err := kc.codec.Unmarshal(data)
	if err != nil {
		kc.logger.Error("Failed to decode L2 entry", "key", key, "error", err)
		kc.metrics.RecordCacheError("l2", "decode")
		return nil, false
	}

	if entry.IsExpired() {
		kc.client.Del(ctx, key)
		return nil, false
	}

	return entry, true
}

// Set writes val under key. The key expiry matches the TTL; the zero TTL keeps it forever.
func (kc *KeyDBCache) Set(key string, val []byte, ttl models.TTL) {
	ctx, cancel := context.WithTimeout(context.Background(), kc.cfg.Connection.SendTimeout)
	defer cancel()

	data, err := kc.codec.Marshal(models.NewEntry(val, ttl))
	if err != nil {
		kc.logger.Error("Failed to encode L2 entry", "key", key, "error", err)
		kc.metrics.RecordCacheError("l2", "encode")
		return
	}

	if err := kc.client.Set(ctx, kc.cfg.Key(key), data, ttl.Total()).Err(); err != nil {
		kc.logger.Warn("Failed to set L2 cache entry", "key", key, "error", err)
		kc.metrics.RecordCacheError("l2", "backend")
		return
	}
	kc.metrics.RecordCacheSet("l2", len(data))
}

func (kc *KeyDBCache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), kc.cfg.Connection.SendTimeout)
	defer cancel()

	if err := kc.client.Del(ctx, kc.cfg.Key(key)).Err(); err != nil {
		kc.logger.Warn("Failed to delete L2 cache entry", "key", key, "error", err)
		kc.metrics.RecordCacheError("l2", "backend")
		return
	}
	kc.metrics.RecordCacheDelete("l2")
}

// Ping checks that the backend is reachable
func (kc *KeyDBCache) Ping(ctx context.Context) error {
	return kc.client.Ping(ctx).Err()
}

// Close closes the KeyDB connection
func (kc *KeyDBCache) Close() error {
	return kc.client.Close()
}
