package cache

import "time"

// BigCacheConfig sizes the in-process tier
type BigCacheConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Size caps the tier in megabytes
	Size         int `yaml:"size" json:"size"`
	MaxEntrySize int `yaml:"max_entry_size" json:"max_entry_size"`
	// Shards must be a power of two
	Shards     int           `yaml:"shards" json:"shards"`
	LifeWindow time.Duration `yaml:"life_window" json:"life_window"`
}

// ApplyDefaults fills every unset field
func (c *BigCacheConfig) ApplyDefaults() {
	orDefault(&c.Size, 64)
	orDefault(&c.MaxEntrySize, 64*1024)
	orDefault(&c.Shards, 256)
	orDefault(&c.LifeWindow, 10*time.Minute)
}

// KeyDBConfig points the shared tier at a KeyDB or Redis database
type KeyDBConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// URL carries address, password and database: redis://:secret@keydb:6379/1
	URL string `yaml:"url" json:"url"`
	// Namespace prefixes every key, so hosts sharing a database stay apart
	Namespace  string           `yaml:"namespace" json:"namespace"`
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	Keepalive  KeepaliveConfig  `yaml:"keepalive" json:"keepalive"`
}

// ApplyDefaults fills every unset timeout and pool setting
func (c *KeyDBConfig) ApplyDefaults() {
	orDefault(&c.Connection.ConnectTimeout, time.Second)
	orDefault(&c.Connection.SendTimeout, time.Second)
	orDefault(&c.Connection.ReadTimeout, time.Second)
	orDefault(&c.Keepalive.PoolSize, 10)
	orDefault(&c.Keepalive.MaxIdleTimeout, 10*time.Second)
}

// Key returns key as stored in the database
func (c *KeyDBConfig) Key(key string) string {
	if c.Namespace == "" {
		return key
	}
	return c.Namespace + ":" + key
}

type ConnectionConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	SendTimeout    time.Duration `yaml:"send_timeout" json:"send_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
}

// KeepaliveConfig bounds the connection pool
type KeepaliveConfig struct {
	PoolSize       int           `yaml:"pool_size" json:"pool_size"`
	MaxIdleTimeout time.Duration `yaml:"max_idle_timeout" json:"max_idle_timeout"`
}

// MultiCacheConfig controls how tiers are combined
type MultiCacheConfig struct {
	// Backfill copies hits from a slower tier into the faster ones
	Backfill bool `yaml:"backfill" json:"backfill"`
}

func orDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}
