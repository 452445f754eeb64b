package models

import (
	"fmt"
	"time"
)

// TTL is how long an entry stays fresh and then how long it may still be served stale.
// The zero TTL means the entry never expires.
type TTL struct {
	Fresh time.Duration
	Stale time.Duration
}

// Forever reports whether t is the non-expiring TTL
func (t TTL) Forever() bool {
	return t.Fresh <= 0 && t.Stale <= 0
}

// Total is the full lifetime; zero when the TTL never expires
func (t TTL) Total() time.Duration {
	if t.Forever() {
		return 0
	}
	return t.Fresh + t.Stale
}

// CacheLevel names the tier an entry was served from
type CacheLevel string

const (
	CacheLevelL1   CacheLevel = "L1"
	CacheLevelL2   CacheLevel = "L2"
	CacheLevelMiss CacheLevel = "MISS"
)

func (cl CacheLevel) String() string {
	return string(cl)
}

// CacheLevelFromIndex names the tier at index: 0 is L1, 1 is L2 and so on.
// Negative indices count as L1.
func CacheLevelFromIndex(index int) CacheLevel {
	return CacheLevel(fmt.Sprintf("L%d", max(index, 0)+1))
}

// CacheResult is a lookup result together with the tier that answered it
type CacheResult struct {
	Entry *CacheEntry `json:"entry,omitempty"`
	Found bool        `json:"found"`
	Level CacheLevel  `json:"level"`
}

// CacheEntry wraps stored bytes with their timestamps (unix seconds).
// ExpiresAt of zero marks an entry that never expires.
type CacheEntry struct {
	Data      []byte `json:"data"`
	ExpiresAt int64  `json:"expires_at"`
	StaleAt   int64  `json:"stale_at"`
	CreatedAt int64  `json:"created_at"`
}

// NewEntry stamps val with the current time and ttl
func NewEntry(val []byte, ttl TTL) CacheEntry {
	now := time.Now().Unix()
	entry := CacheEntry{
		Data:      val,
		CreatedAt: now,
	}
	if !ttl.Forever() {
		entry.StaleAt = now + int64(ttl.Fresh.Seconds())
		entry.ExpiresAt = entry.StaleAt + int64(ttl.Stale.Seconds())
	}
	return entry
}

// Persistent reports whether the entry never expires
func (ce *CacheEntry) Persistent() bool {
	return ce.ExpiresAt == 0
}

// IsExpired reports whether the entry is past its stale window
func (ce *CacheEntry) IsExpired() bool {
	return !ce.Persistent() && time.Now().Unix() > ce.ExpiresAt
}

// IsFresh reports whether the entry is still inside its fresh window
func (ce *CacheEntry) IsFresh() bool {
	return ce.Persistent() || time.Now().Unix() <= ce.StaleAt
}

// Age is the time since the entry was written
func (ce *CacheEntry) Age() time.Duration {
	return time.Duration(time.Now().Unix()-ce.CreatedAt) * time.Second
}

// RemainingTTL is the TTL to use when copying the entry to another tier.
// Persistent entries return the zero TTL. Once the fresh part has run out,
// everything left counts as stale.
func (ce *CacheEntry) RemainingTTL() TTL {
	if ce.Persistent() {
		return TTL{}
	}

	now := time.Now().Unix()
	fresh := max(ce.StaleAt-now, 0)
	stale := ce.ExpiresAt - ce.StaleAt
	if fresh == 0 {
		stale = ce.ExpiresAt - now
	}

	return TTL{
		Fresh: time.Duration(fresh) * time.Second,
		Stale: time.Duration(max(stale, 0)) * time.Second,
	}
}
