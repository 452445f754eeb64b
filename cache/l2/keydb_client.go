package l2

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/status-im/credential-host/cache"
)

var _ cache.KeyDbClient = (*RedisKeyDbClient)(nil)

// RedisKeyDbClient is a go-redis client that answered a ping when it was created.
// The KeyDbClient methods are those of the embedded client.
type RedisKeyDbClient struct {
	*redis.Client
}

type dialOptions struct {
	logger cache.Logger
}

// ClientOption configures NewRedisKeyDbClient
type ClientOption func(*dialOptions)

// WithClientLogger sets where the connection is reported
func WithClientLogger(logger cache.Logger) ClientOption {
	return func(o *dialOptions) {
		o.logger = logger
	}
}

// redisOptions turns cfg into client options. The URL carries address,
// password and database; timeouts and pool size come from cfg.
func redisOptions(cfg *cache.KeyDBConfig) (*redis.Options, error) {
	cfg.ApplyDefaults()

	if cfg.URL == "" {
		return nil, fmt.Errorf("KeyDB URL is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse KeyDB URL: %w", err)
	}

	opts.DialTimeout = cfg.Connection.ConnectTimeout
	opts.ReadTimeout = cfg.Connection.ReadTimeout
	opts.WriteTimeout = cfg.Connection.SendTimeout
	opts.PoolSize = cfg.Keepalive.PoolSize
	opts.IdleTimeout = cfg.Keepalive.MaxIdleTimeout
	return opts, nil
}

// NewRedisKeyDbClient dials KeyDB and fails unless it answers a ping in time
func NewRedisKeyDbClient(cfg *cache.KeyDBConfig, opts ...ClientOption) (*RedisKeyDbClient, error) {
	dial := dialOptions{logger: cache.NoopLogger{}}
	for _, opt := range opts {
		opt(&dial)
	}

	redisOpts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Connection.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to KeyDB at %s: %w", redisOpts.Addr, err)
	}

	dial.logger.Info("Connected to KeyDB",
		"address", redisOpts.Addr,
		"db", redisOpts.DB,
		"namespace", cfg.Namespace,
		"pool_size", redisOpts.PoolSize)

	return &RedisKeyDbClient{Client: client}, nil
}
