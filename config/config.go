// Package config loads the host configuration from a YAML file and CREDHOST_* variables.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/status-im/credential-host/cache"
	"github.com/status-im/credential-host/cache/codec"
	"github.com/status-im/credential-host/logging"
	"github.com/status-im/credential-host/ratelimit"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "CREDHOST_"

// minSecretLength is the shortest accepted HS256 signing secret
const minSecretLength = 16

type Config struct {
	Listen             string                         `yaml:"listen"`
	JWTSecret          string                         `yaml:"jwt_secret"`
	TokenExpiryMinutes int                            `yaml:"token_expiry_minutes"`
	DescriptorDirs     []string                       `yaml:"descriptor_dirs"`
	RescanInterval     time.Duration                  `yaml:"rescan_interval"` // 0 disables rescans
	Store              StoreConfig                    `yaml:"store"`
	Retry              RetryConfig                    `yaml:"retry"`
	RateLimits         map[string]ratelimit.RateLimit `yaml:"rate_limits"`
	Logging            logging.Options                `yaml:"logging"`
}

// StoreConfig selects the cache tiers that hold credential values
type StoreConfig struct {
	L1    cache.BigCacheConfig   `yaml:"l1"`
	L2    cache.KeyDBConfig      `yaml:"l2"`
	Multi cache.MultiCacheConfig `yaml:"multi"`
	// TTL of stored credentials; 0 keeps them until deleted
	TTL time.Duration `yaml:"ttl"`
	// EncryptionKey is a base64 32-byte key. When set, entries are sealed
	// before they reach either tier.
	EncryptionKey string `yaml:"encryption_key"`
}

// Key decodes EncryptionKey; nil when encryption is off
func (s StoreConfig) Key() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	return codec.ParseKey(s.EncryptionKey)
}

// RetryConfig configures outbound requests made with stored credentials
type RetryConfig struct {
	Attempts          int           `yaml:"attempts"`
	BaseBackoff       time.Duration `yaml:"base_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

type Option func(*Config)

// New returns the default configuration with opts applied
func New(opts ...Option) *Config {
	cfg := &Config{
		Listen:             ":8080",
		TokenExpiryMinutes: 60,
		RescanInterval:     time.Minute,
		Store: StoreConfig{
			L1:    cache.BigCacheConfig{Enabled: true},
			Multi: cache.MultiCacheConfig{Backfill: true},
		},
		Retry: RetryConfig{
			Attempts:          3,
			BaseBackoff:       time.Second,
			MaxBackoff:        10 * time.Second,
			ConnectionTimeout: 10 * time.Second,
			RequestTimeout:    30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

func WithListen(addr string) Option {
	return func(c *Config) {
		c.Listen = addr
	}
}

func WithJWTSecret(secret string) Option {
	return func(c *Config) {
		c.JWTSecret = secret
	}
}

func WithTokenExpiry(minutes int) Option {
	return func(c *Config) {
		c.TokenExpiryMinutes = minutes
	}
}

func WithDescriptorDirs(dirs ...string) Option {
	return func(c *Config) {
		c.DescriptorDirs = dirs
	}
}

func WithRescanInterval(d time.Duration) Option {
	return func(c *Config) {
		c.RescanInterval = d
	}
}

// WithKeyDB enables the shared L2 tier at url
func WithKeyDB(url string) Option {
	return func(c *Config) {
		c.Store.L2.Enabled = true
		c.Store.L2.URL = url
	}
}

func WithRateLimit(credentialType string, limit ratelimit.RateLimit) Option {
	return func(c *Config) {
		if c.RateLimits == nil {
			c.RateLimits = make(map[string]ratelimit.RateLimit)
		}
		c.RateLimits[credentialType] = limit
	}
}

func WithLogLevel(level string) Option {
	return func(c *Config) {
		c.Logging.Level = level
	}
}

// LoadFromFile reads a YAML file over the defaults. Unknown keys are rejected.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := New()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Load reads path when it is not empty (falling back to CREDHOST_CONFIG),
// applies CREDHOST_* overrides and validates the result
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}

	cfg := New()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds a configuration from defaults and environment variables only
func LoadFromEnv() (*Config, error) {
	cfg := New()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides c with any CREDHOST_* variables that are set
func (c *Config) ApplyEnv() error {
	if v, ok := lookupEnv("LISTEN"); ok {
		c.Listen = v
	}
	if v, ok := lookupEnv("JWT_SECRET"); ok {
		c.JWTSecret = v
	}
	if v, ok := lookupEnv("TOKEN_EXPIRY_MINUTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sTOKEN_EXPIRY_MINUTES: %w", EnvPrefix, err)
		}
		c.TokenExpiryMinutes = n
	}
	if v, ok := lookupEnv("DESCRIPTOR_DIRS"); ok {
		c.DescriptorDirs = splitList(v)
	}
	if v, ok := lookupEnv("RESCAN_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sRESCAN_INTERVAL: %w", EnvPrefix, err)
		}
		c.RescanInterval = d
	}
	if v, ok := lookupEnv("KEYDB_URL"); ok {
		c.Store.L2.URL = v
		c.Store.L2.Enabled = v != ""
	}
	if v, ok := lookupEnv("KEYDB_NAMESPACE"); ok {
		c.Store.L2.Namespace = v
	}
	if v, ok := lookupEnv("STORE_ENCRYPTION_KEY"); ok {
		c.Store.EncryptionKey = v
	}
	if v, ok := lookupEnv("STORE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sSTORE_TTL: %w", EnvPrefix, err)
		}
		c.Store.TTL = d
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookupEnv("LOG_DIR"); ok {
		c.Logging.Dir = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT secret must be at least %d characters", minSecretLength)
	}

	if c.TokenExpiryMinutes <= 0 {
		return fmt.Errorf("token expiry must be positive")
	}

	if c.RescanInterval < 0 {
		return fmt.Errorf("rescan interval must be non-negative")
	}

	if !c.Store.L1.Enabled && !c.Store.L2.Enabled {
		return fmt.Errorf("at least one store tier must be enabled")
	}

	if c.Store.L2.Enabled && c.Store.L2.URL == "" {
		return fmt.Errorf("store.l2.url is required when the KeyDB tier is enabled")
	}

	if c.Store.L1.Shards < 0 || c.Store.L1.Shards&(c.Store.L1.Shards-1) != 0 {
		return fmt.Errorf("store.l1.shards must be a power of two")
	}

	if c.Store.TTL < 0 {
		return fmt.Errorf("store ttl must be non-negative")
	}

	if _, err := c.Store.Key(); err != nil {
		return fmt.Errorf("store.encryption_key: %w", err)
	}

	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("retry.attempts must be positive")
	}

	for name, limit := range c.RateLimits {
		if limit.RateLimitPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate limit for %q must be non-negative", name)
		}
	}

	return nil
}

func lookupEnv(name string) (string, bool) {
	return os.LookupEnv(EnvPrefix + name)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
