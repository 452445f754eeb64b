// Package ratelimit throttles outbound requests per configured credential.
package ratelimit

import (
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultKey selects the limit used for credential types without their own entry
const DefaultKey = "*"

// defaultPerMinute applies when neither the type nor DefaultKey is configured
const defaultPerMinute = 60

// RateLimit is the limit for one credential type
type RateLimit struct {
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	Burst              int `yaml:"burst" json:"burst"`
}

// IRateLimiterManager hands out one limiter per credential
type IRateLimiterManager interface {
	GetLimiter(credentialID, credentialType string) *rate.Limiter
	Forget(credentialID string)
	SetConfig(config map[string]RateLimit)
}

var _ IRateLimiterManager = (*RateLimiterManager)(nil)

// RateLimiterManager manages per-credential rate limiters. Limits are
// configured per credential type, keyed by type name.
type RateLimiterManager struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	config   map[string]RateLimit
}

// NewRateLimiterManager creates a new rate limiter manager
func NewRateLimiterManager(config map[string]RateLimit) *RateLimiterManager {
	return &RateLimiterManager{
		limiters: make(map[string]*rate.Limiter),
		config:   config,
	}
}

// SetConfig replaces the limits; existing limiters are dropped and rebuilt on next use
func (m *RateLimiterManager) SetConfig(newConfig map[string]RateLimit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = newConfig
	m.limiters = make(map[string]*rate.Limiter)
}

// GetLimiter returns the limiter for a credential, creating it if missing
func (m *RateLimiterManager) GetLimiter(credentialID, credentialType string) *rate.Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[credentialID]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if lim, ok := m.limiters[credentialID]; ok {
		return lim
	}

	cfg := m.configFor(credentialType)
	limit := limitFor(cfg)
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurstForLimit(limit)
	}

	limiter := rate.NewLimiter(limit, burst)
	m.limiters[credentialID] = limiter
	return limiter
}

// Forget drops the limiter of a deleted credential
func (m *RateLimiterManager) Forget(credentialID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.limiters, credentialID)
}

// Len is the number of live limiters
func (m *RateLimiterManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.limiters)
}

func (m *RateLimiterManager) configFor(credentialType string) RateLimit {
	if cfg, ok := m.config[credentialType]; ok {
		return cfg
	}
	return m.config[DefaultKey]
}

func limitFor(cfg RateLimit) rate.Limit {
	if cfg.RateLimitPerMinute > 0 {
		return rate.Limit(float64(cfg.RateLimitPerMinute) / 60.0)
	}
	return rate.Limit(defaultPerMinute / 60.0)
}

func defaultBurstForLimit(limit rate.Limit) int {
	if limit <= 1.0 {
		return 1
	}
	return int(math.Ceil(float64(limit)))
}
