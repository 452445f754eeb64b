package cli

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/status-im/credential-host/cache"
	"github.com/status-im/credential-host/cache/codec"
	"github.com/status-im/credential-host/cache/l1"
	"github.com/status-im/credential-host/cache/l2"
	"github.com/status-im/credential-host/cache/memory"
	cachemetrics "github.com/status-im/credential-host/cache/metrics"
	"github.com/status-im/credential-host/cache/multi"
	"github.com/status-im/credential-host/config"
	"github.com/status-im/credential-host/httpclient"
	"github.com/status-im/credential-host/loader"
	"github.com/status-im/credential-host/logging"
	"github.com/status-im/credential-host/metrics"
	"github.com/status-im/credential-host/models"
	"github.com/status-im/credential-host/ratelimit"
	"github.com/status-im/credential-host/registry"
	"github.com/status-im/credential-host/server"
	"github.com/status-im/credential-host/store"
)

// loadConfig reads the config file and environment. Only serve needs a
// fully valid config; the other commands skip validation.
func loadConfig(opts *rootOptions, validate bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if validate {
		cfg, err = config.Load(opts.configPath)
	} else {
		path := opts.configPath
		if path == "" {
			path = os.Getenv(config.EnvPrefix + "CONFIG")
		}
		if path != "" {
			cfg, err = config.LoadFromFile(path)
			if err == nil {
				err = cfg.ApplyEnv()
			}
		} else {
			cfg, err = config.LoadFromEnv()
		}
	}
	if err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	cfg.DescriptorDirs = append(cfg.DescriptorDirs, opts.dirs...)
	return cfg, nil
}

// loadTypes registers the built-in descriptors and every descriptor found in dirs
func loadTypes(dirs []string, logger logging.Logger, m metrics.MetricsRecorder) (*registry.Registry, *loader.Loader, loader.Result, error) {
	reg := registry.New(registry.WithLogger(logger), registry.WithMetrics(m))
	ld := loader.New(reg, loader.WithLogger(logger))

	res, err := ld.LoadBuiltin()
	if err != nil {
		return nil, nil, res, fmt.Errorf("failed to load built-in credential types: %w", err)
	}

	dirRes, err := ld.LoadDirs(dirs)
	res.Registered = append(res.Registered, dirRes.Registered...)
	res.Skipped = append(res.Skipped, dirRes.Skipped...)
	if err != nil {
		return nil, nil, res, err
	}

	return reg, ld, res, nil
}

// runtime holds the components shared by serve and request
type runtime struct {
	cfg     *config.Config
	zap     *zap.Logger
	logger  logging.Logger
	metrics metrics.MetricsRecorder

	registry *registry.Registry
	loader   *loader.Loader
	store    *store.CacheStore
	limits   *ratelimit.RateLimiterManager
	client   *httpclient.CredentialedClient
	health   []server.Pinger

	closers []func() error
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	zl, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt := &runtime{
		cfg:     cfg,
		zap:     zl,
		logger:  logging.Sugar(zl),
		metrics: metrics.NewPrometheusMetrics(),
	}

	rt.registry, rt.loader, _, err = loadTypes(cfg.DescriptorDirs, rt.logger, rt.metrics)
	if err != nil {
		rt.Close()
		return nil, err
	}

	cacheMetrics := cachemetrics.New(cachemetrics.Config{})
	tiers, err := rt.buildTiers(cacheMetrics)
	if err != nil {
		rt.Close()
		return nil, err
	}

	levelCache := multi.NewMultiCache(tiers, cfg.Store.Multi.Backfill,
		multi.WithLogger(rt.logger),
		multi.WithMetrics(cacheMetrics))

	rt.store = store.NewCacheStore(levelCache, rt.registry,
		store.WithLogger(rt.logger),
		store.WithMetrics(rt.metrics),
		store.WithTTL(models.TTL{Fresh: cfg.Store.TTL}))

	rt.limits = ratelimit.NewRateLimiterManager(cfg.RateLimits)

	policy := httpclient.RetryPolicy{
		Attempts:       cfg.Retry.Attempts,
		BaseBackoff:    cfg.Retry.BaseBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		ConnectTimeout: cfg.Retry.ConnectionTimeout,
		RequestTimeout: cfg.Retry.RequestTimeout,
	}
	rt.client = httpclient.NewCredentialedClient(policy, rt.store, rt.registry,
		httpclient.WithRateLimits(rt.limits),
		httpclient.WithLogger(rt.logger),
		httpclient.WithMetrics(rt.metrics))

	return rt, nil
}

// entryCodec seals entries when an encryption key is configured
func (rt *runtime) entryCodec() (cache.Codec, error) {
	key, err := rt.cfg.Store.Key()
	if err != nil {
		return nil, err
	}
	if key == nil {
		if rt.cfg.Store.L2.Enabled {
			rt.logger.Warn("No store encryption key set; credential values reach KeyDB unencrypted")
		}
		return codec.JSON{}, nil
	}
	return codec.NewSealed(key, codec.JSON{})
}

// buildTiers returns the enabled cache tiers, fastest first
func (rt *runtime) buildTiers(cacheMetrics cache.MetricsRecorder) ([]cache.Cache, error) {
	var tiers []cache.Cache

	entries, err := rt.entryCodec()
	if err != nil {
		return nil, fmt.Errorf("invalid store encryption key: %w", err)
	}

	if rt.cfg.Store.L1.Enabled {
		bc, err := l1.NewBigCache(&rt.cfg.Store.L1,
			l1.WithLogger(rt.logger),
			l1.WithMetrics(cacheMetrics),
			l1.WithCodec(entries))
		if err != nil {
			return nil, fmt.Errorf("failed to create L1 cache: %w", err)
		}
		rt.closers = append(rt.closers, bc.Close)
		tiers = append(tiers, bc)
	}

	if rt.cfg.Store.L2.Enabled {
		client, err := l2.NewRedisKeyDbClient(&rt.cfg.Store.L2, l2.WithClientLogger(rt.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to KeyDB: %w", err)
		}
		kc := l2.NewKeyDBCache(&rt.cfg.Store.L2, client,
			l2.WithLogger(rt.logger),
			l2.WithMetrics(cacheMetrics),
			l2.WithCodec(entries))
		rt.closers = append(rt.closers, kc.Close)
		rt.health = append(rt.health, kc)
		tiers = append(tiers, kc)
	}

	// bigcache evicts by age and size, so it cannot be the only copy
	if !rt.cfg.Store.L2.Enabled {
		rt.logger.Info("KeyDB disabled; credentials are kept in process memory")
		tiers = append(tiers, memory.New(memory.WithMetrics(cacheMetrics)))
	}

	return tiers, nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("Failed to close component", "error", err)
		}
	}
	rt.closers = nil
	if rt.zap != nil {
		_ = rt.zap.Sync()
	}
}
