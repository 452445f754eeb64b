package l1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/status-im/credential-host/cache"
	"github.com/status-im/credential-host/cache/codec"
	"github.com/status-im/credential-host/cache/mock"
	"github.com/status-im/credential-host/models"
)

func newTestBigCache(t *testing.T, opts ...Option) *BigCache {
	t.Helper()
	c, err := NewBigCache(&cache.BigCacheConfig{Enabled: true, Size: 10}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// putRaw bypasses Set so tests can plant entries with arbitrary timestamps
func putRaw(t *testing.T, c *BigCache, key string, entry models.CacheEntry) {
	t.Helper()
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, c.cache.Set(key, data))
}

func TestNewBigCache_AppliesDefaults(t *testing.T) {
	cfg := &cache.BigCacheConfig{Enabled: true}
	c, err := NewBigCache(cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 10*time.Minute, cfg.LifeWindow)
	assert.Equal(t, 256, cfg.Shards)
	assert.Equal(t, 0, c.Len())
}

func TestBigCache_SetAndGet(t *testing.T) {
	c := newTestBigCache(t)

	c.Set("test-key", []byte("test-value"), models.TTL{Fresh: time.Minute, Stale: 30 * time.Second})

	result, found := c.Get("test-key")
	require.True(t, found)
	assert.True(t, result.IsFresh())
	assert.False(t, result.Persistent())
	assert.Equal(t, []byte("test-value"), result.Data)
}

func TestBigCache_ForeverTTL(t *testing.T) {
	c := newTestBigCache(t)

	c.Set("credential:1", []byte(`{"apiKey":"k"}`), models.TTL{})

	result, found := c.Get("credential:1")
	require.True(t, found)
	assert.True(t, result.Persistent())
	assert.True(t, result.IsFresh())
	assert.Equal(t, models.TTL{}, result.RemainingTTL())
}

func TestBigCache_Get_NotFound(t *testing.T) {
	c := newTestBigCache(t)

	result, found := c.Get("non-existent-key")

	assert.False(t, found)
	assert.Nil(t, result)
}

func TestBigCache_Get_Stale(t *testing.T) {
	c := newTestBigCache(t)
	now := time.Now().Unix()

	putRaw(t, c, "test-key", models.CacheEntry{
		Data:      []byte("test-value"),
		CreatedAt: now - 200,
		StaleAt:   now - 50,
		ExpiresAt: now + 100,
	})

	result, found := c.Get("test-key")
	require.True(t, found)
	assert.False(t, result.IsFresh())
	assert.Equal(t, []byte("test-value"), result.Data)
}

func TestBigCache_Get_ExpiredIsEvicted(t *testing.T) {
	c := newTestBigCache(t)
	now := time.Now().Unix()

	putRaw(t, c, "test-key", models.CacheEntry{
		Data:      []byte("test-value"),
		CreatedAt: now - 300,
		StaleAt:   now - 200,
		ExpiresAt: now - 100,
	})

	result, found := c.Get("test-key")
	assert.False(t, found)
	assert.Nil(t, result)
	assert.Equal(t, 0, c.Len())
}

func TestBigCache_Get_CorruptEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	metrics := mock.NewMockMetricsRecorder(ctrl)
	metrics.EXPECT().UpdateL1CacheCapacity(gomock.Any(), gomock.Any()).AnyTimes()
	metrics.EXPECT().UpdateCacheKeys("l1", gomock.Any()).AnyTimes()
	metrics.EXPECT().RecordCacheError("l1", "decode")

	c := newTestBigCache(t, WithMetrics(metrics))
	require.NoError(t, c.cache.Set("bad", []byte("not json")))

	_, found := c.Get("bad")
	assert.False(t, found)
	assert.Equal(t, 0, c.Len())
}

func TestBigCache_SealedCodec(t *testing.T) {
	sealed, err := codec.NewSealed(bytes.Repeat([]byte{4}, 32), nil)
	require.NoError(t, err)
	c := newTestBigCache(t, WithCodec(sealed))

	c.Set("credential:1", []byte(`{"apiKey":"sk-live-123"}`), models.TTL{})

	raw, err := c.cache.Get("credential:1")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-live-123")

	result, found := c.Get("credential:1")
	require.True(t, found)
	assert.Equal(t, []byte(`{"apiKey":"sk-live-123"}`), result.Data)
}

func TestBigCache_Set_EncodeError(t *testing.T) {
	ctrl := gomock.NewController(t)
	metrics := mock.NewMockMetricsRecorder(ctrl)
	metrics.EXPECT().UpdateL1CacheCapacity(gomock.Any(), gomock.Any()).AnyTimes()
	metrics.EXPECT().UpdateCacheKeys("l1", gomock.Any()).AnyTimes()
	metrics.EXPECT().RecordCacheError("l1", "encode")

	enc := mock.NewMockCodec(ctrl)
	enc.EXPECT().Marshal(gomock.Any()).Return(nil, errors.New("boom"))

	c := newTestBigCache(t, WithMetrics(metrics), WithCodec(enc))
	c.Set("key", []byte("v"), models.TTL{})

	assert.Equal(t, 0, c.Len())
}

func TestBigCache_Set_TooLarge(t *testing.T) {
	ctrl := gomock.NewController(t)
	metrics := mock.NewMockMetricsRecorder(ctrl)
	metrics.EXPECT().UpdateL1CacheCapacity(gomock.Any(), gomock.Any()).AnyTimes()
	metrics.EXPECT().UpdateCacheKeys("l1", gomock.Any()).AnyTimes()
	metrics.EXPECT().RecordCacheError("l1", "entry_too_large")

	c, err := NewBigCache(&cache.BigCacheConfig{Size: 10, MaxEntrySize: 64}, WithMetrics(metrics))
	require.NoError(t, err)
	defer c.Close()

	c.Set("big", make([]byte, 512), models.TTL{})

	_, found := c.Get("big")
	assert.False(t, found)
}

func TestBigCache_Delete(t *testing.T) {
	c := newTestBigCache(t)

	c.Set("test-key", []byte("test-value"), models.TTL{})
	_, found := c.Get("test-key")
	require.True(t, found)

	c.Delete("test-key")

	result, found := c.Get("test-key")
	assert.False(t, found)
	assert.Nil(t, result)

	assert.NotPanics(t, func() { c.Delete("non-existent-key") })
}

func TestBigCache_MultipleKeys(t *testing.T) {
	c := newTestBigCache(t)

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("value-%d", i)), models.TTL{})
	}

	for i := 0; i < 10; i++ {
		result, found := c.Get(fmt.Sprintf("key-%d", i))
		require.True(t, found)
		assert.Equal(t, []byte(fmt.Sprintf("value-%d", i)), result.Data)
	}
	assert.Equal(t, 10, c.Len())
}

func TestBigCache_ConcurrentAccess(t *testing.T) {
	c := newTestBigCache(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("concurrent-key-%d-%d", id, j)
				value := []byte(fmt.Sprintf("value-%d-%d", id, j))

				c.Set(key, value, models.TTL{})
				if result, found := c.Get(key); found {
					assert.Equal(t, value, result.Data)
				}
				c.Delete(key)
			}
		}(i)
	}
	wg.Wait()
}

func TestBigCache_EdgeCases(t *testing.T) {
	c := newTestBigCache(t)

	t.Run("empty key", func(t *testing.T) {
		c.Set("", []byte("value"), models.TTL{})
		result, found := c.Get("")
		require.True(t, found)
		assert.Equal(t, []byte("value"), result.Data)
	})

	t.Run("nil value", func(t *testing.T) {
		c.Set("nil-value-key", nil, models.TTL{})
		result, found := c.Get("nil-value-key")
		require.True(t, found)
		assert.Nil(t, result.Data)
	})
}
