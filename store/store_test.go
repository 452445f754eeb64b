package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/status-im/credential-host/cache"
	"github.com/status-im/credential-host/cache/l1"
	"github.com/status-im/credential-host/cache/memory"
	"github.com/status-im/credential-host/cache/mock"
	"github.com/status-im/credential-host/cache/multi"
	"github.com/status-im/credential-host/descriptor"
	"github.com/status-im/credential-host/descriptor/builtin"
	"github.com/status-im/credential-host/models"
	"github.com/status-im/credential-host/registry"
)

func tuningDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Name: "TunedApi",
		Fields: []descriptor.FieldSpec{
			{Name: "token", Kind: descriptor.KindString, Secret: true},
			{Name: "timeout", Kind: descriptor.KindNumber, Default: 30},
			{Name: "verbose", Kind: descriptor.KindBoolean, Default: true},
			{Name: "region", Kind: descriptor.KindString},
		},
		Auth: descriptor.AuthRule{
			Mode: descriptor.ModeGeneric,
			Headers: map[string]descriptor.Template{
				"X-Token": {descriptor.FieldRef("token")},
			},
		},
	}
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	builtins, err := builtin.Descriptors()
	require.NoError(t, err)
	for _, d := range builtins {
		require.NoError(t, reg.Register(d))
	}
	require.NoError(t, reg.Register(tuningDescriptor()))
	return reg
}

func newBigCache(t *testing.T, lifeWindow time.Duration) *l1.BigCache {
	t.Helper()
	bc, err := l1.NewBigCache(&cache.BigCacheConfig{Size: 8, LifeWindow: lifeWindow})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bc.Close() })
	return bc
}

// newTestStore stacks a bigcache over a memory tier, as serve does without KeyDB
func newTestStore(t *testing.T) *CacheStore {
	t.Helper()
	tiers := []cache.Cache{newBigCache(t, 0), memory.New()}
	return NewCacheStore(multi.NewMultiCache(tiers, true), newTestRegistry(t))
}

func TestCreate_HoldsDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("custom api", func(t *testing.T) {
		cred, err := s.Create(ctx, builtin.CustomAPIName)
		require.NoError(t, err)

		assert.NotEmpty(t, cred.ID)
		assert.Equal(t, "CustomApi", cred.Type)
		assert.Equal(t, descriptor.Values{"apiKey": "", "baseUrl": ""}, cred.Values)

		loaded, err := s.Get(ctx, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, cred.Values, loaded.Values)
	})

	t.Run("typed defaults survive a round trip", func(t *testing.T) {
		cred, err := s.Create(ctx, "TunedApi")
		require.NoError(t, err)

		loaded, err := s.Get(ctx, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(30), loaded.Values["timeout"])
		assert.Equal(t, true, loaded.Values["verbose"])
		assert.Equal(t, "", loaded.Values["region"])
	})
}

func TestCreate_UnknownType(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Create(context.Background(), "NoSuchApi")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestCreate_CancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, builtin.CustomAPIName)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cred, err := s.Create(ctx, "TunedApi")
	require.NoError(t, err)

	t.Run("coerces to the field kind", func(t *testing.T) {
		updated, err := s.Update(ctx, cred.ID, map[string]any{
			"token":   "s3cret",
			"timeout": "12.5",
			"verbose": "false",
		})
		require.NoError(t, err)

		assert.Equal(t, "s3cret", updated.Values["token"])
		assert.Equal(t, 12.5, updated.Values["timeout"])
		assert.Equal(t, false, updated.Values["verbose"])
		assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
	})

	t.Run("kind mismatch writes nothing", func(t *testing.T) {
		_, err := s.Update(ctx, cred.ID, map[string]any{
			"region":  "eu-west-1",
			"timeout": "soon",
		})

		var mismatch *descriptor.KindMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "timeout", mismatch.Field)

		loaded, err := s.Get(ctx, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, "", loaded.Values["region"])
		assert.Equal(t, 12.5, loaded.Values["timeout"])
	})

	t.Run("line break in value", func(t *testing.T) {
		_, err := s.Update(ctx, cred.ID, map[string]any{"token": "t\r\nX-Evil: 1"})

		var invalid *descriptor.InvalidValueError
		require.ErrorAs(t, err, &invalid)

		loaded, err := s.Get(ctx, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, "s3cret", loaded.Values["token"])
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := s.Update(ctx, cred.ID, map[string]any{"password": "x"})

		var unknown *descriptor.UnknownFieldError
		assert.ErrorAs(t, err, &unknown)
	})

	t.Run("missing credential", func(t *testing.T) {
		_, err := s.Update(ctx, "does-not-exist", map[string]any{"token": "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdate_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cred, err := s.Create(ctx, "TunedApi")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, field := range []string{"token", "region"} {
		wg.Add(1)
		go func(field string) {
			defer wg.Done()
			_, err := s.Update(ctx, cred.ID, map[string]any{field: field + "-value"})
			assert.NoError(t, err)
		}(field)
	}
	wg.Wait()

	loaded, err := s.Get(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, "token-value", loaded.Values["token"])
	assert.Equal(t, "region-value", loaded.Values["region"])
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cred, err := s.Create(ctx, builtin.CustomAPIName)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, cred.ID))

	_, err = s.Get(ctx, cred.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, cred.ID), ErrNotFound)
}

func TestCacheStore_OutlivesL1LifeWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the l1 life window")
	}

	tiers := []cache.Cache{newBigCache(t, time.Second), memory.New()}
	s := NewCacheStore(multi.NewMultiCache(tiers, true), newTestRegistry(t))
	ctx := context.Background()

	cred, err := s.Create(ctx, builtin.CustomAPIName)
	require.NoError(t, err)
	_, err = s.Update(ctx, cred.ID, map[string]any{"apiKey": "sk-123"})
	require.NoError(t, err)

	time.Sleep(3 * time.Second)

	loaded, err := s.Get(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-123", loaded.Values["apiKey"])

	loaded, err = s.Load(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-123", loaded.Values["apiKey"])
}

// twoHosts returns stores with their own l1 over one shared backing tier,
// the way two instances share a KeyDB
func twoHosts(t *testing.T) (*CacheStore, *CacheStore) {
	t.Helper()
	shared := memory.New()
	reg := newTestRegistry(t)
	a := NewCacheStore(multi.NewMultiCache([]cache.Cache{newBigCache(t, 0), shared}, true), reg)
	b := NewCacheStore(multi.NewMultiCache([]cache.Cache{newBigCache(t, 0), shared}, true), reg)
	return a, b
}

func TestCacheStore_SharedBackingTier(t *testing.T) {
	ctx := context.Background()

	t.Run("load sees another host's update", func(t *testing.T) {
		a, b := twoHosts(t)

		cred, err := a.Create(ctx, "TunedApi")
		require.NoError(t, err)
		_, err = b.Get(ctx, cred.ID)
		require.NoError(t, err)

		_, err = a.Update(ctx, cred.ID, map[string]any{"token": "rotated"})
		require.NoError(t, err)

		loaded, err := b.Load(ctx, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, "rotated", loaded.Values["token"])

		// Load refreshed b's l1
		cached, err := b.Get(ctx, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, "rotated", cached.Values["token"])
	})

	t.Run("update keeps another host's change", func(t *testing.T) {
		a, b := twoHosts(t)

		cred, err := a.Create(ctx, "TunedApi")
		require.NoError(t, err)
		_, err = b.Get(ctx, cred.ID)
		require.NoError(t, err)

		_, err = a.Update(ctx, cred.ID, map[string]any{"token": "from-a"})
		require.NoError(t, err)
		updated, err := b.Update(ctx, cred.ID, map[string]any{"region": "eu-west-1"})
		require.NoError(t, err)

		assert.Equal(t, "from-a", updated.Values["token"])
		assert.Equal(t, "eu-west-1", updated.Values["region"])

		loaded, err := a.Load(ctx, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, "from-a", loaded.Values["token"])
		assert.Equal(t, "eu-west-1", loaded.Values["region"])
	})

	t.Run("deleted on another host", func(t *testing.T) {
		a, b := twoHosts(t)

		cred, err := a.Create(ctx, builtin.CustomAPIName)
		require.NoError(t, err)
		_, err = b.Get(ctx, cred.ID)
		require.NoError(t, err)

		require.NoError(t, a.Delete(ctx, cred.ID))

		_, err = b.Load(ctx, cred.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = b.Get(ctx, cred.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = b.Update(ctx, cred.ID, map[string]any{"apiKey": "x"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, b.Delete(ctx, cred.ID), ErrNotFound)
	})
}

func TestCacheStore_UpdateReadsBackingTier(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewMockLevelAwareCache(ctrl)
	s := NewCacheStore(c, newTestRegistry(t))

	stored, err := json.Marshal(&Credential{ID: "abc", Type: "CustomApi", Values: descriptor.Values{"apiKey": "", "baseUrl": ""}})
	require.NoError(t, err)

	// no GetWithLevel: the local tier may hold an older record
	c.EXPECT().GetLatest(KeyPrefix + "abc").Return(&models.CacheResult{
		Entry: &models.CacheEntry{Data: stored},
		Found: true,
		Level: models.CacheLevelL2,
	})
	c.EXPECT().Set(KeyPrefix+"abc", gomock.Any(), models.TTL{})

	updated, err := s.Update(context.Background(), "abc", map[string]any{"apiKey": "k"})
	require.NoError(t, err)
	assert.Equal(t, "k", updated.Values["apiKey"])
}

func TestCacheStore_WritesWithConfiguredTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewMockLevelAwareCache(ctrl)
	ttl := models.TTL{Fresh: time.Hour}

	s := NewCacheStore(c, newTestRegistry(t), WithTTL(ttl))

	c.EXPECT().Set(gomock.Any(), gomock.Any(), ttl).Do(func(key string, data []byte, _ models.TTL) {
		assert.Contains(t, key, KeyPrefix)

		var cred Credential
		require.NoError(t, json.Unmarshal(data, &cred))
		assert.Equal(t, "CustomApi", cred.Type)
	})

	_, err := s.Create(context.Background(), builtin.CustomAPIName)
	require.NoError(t, err)
}

func TestCacheStore_CorruptRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewMockLevelAwareCache(ctrl)
	s := NewCacheStore(c, newTestRegistry(t))

	c.EXPECT().GetWithLevel(KeyPrefix + "abc").Return(&models.CacheResult{
		Entry: &models.CacheEntry{Data: []byte("{")},
		Found: true,
		Level: models.CacheLevelL2,
	})

	_, err := s.Get(context.Background(), "abc")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestCredential_PrintDoesNotLeakValues(t *testing.T) {
	cred := Credential{ID: "1", Type: "CustomApi", Values: descriptor.Values{"apiKey": "sk-live-123"}}

	assert.NotContains(t, cred.Values.String(), "sk-live-123")
}
