// Package store keeps the values users enter for their credentials. Values are
// checked against the credential type when written, so everything read back
// already has the declared kind.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/status-im/credential-host/cache"
	"github.com/status-im/credential-host/descriptor"
	"github.com/status-im/credential-host/logging"
	"github.com/status-im/credential-host/metrics"
	"github.com/status-im/credential-host/models"
	"github.com/status-im/credential-host/registry"
)

// KeyPrefix namespaces credential records in the cache tiers
const KeyPrefix = "credential:"

// ErrNotFound is returned when no credential has the requested id
var ErrNotFound = errors.New("credential not found")

// Credential is one configured instance of a credential type
type Credential struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Values    descriptor.Values `json:"values"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Store creates, reads, updates and deletes credentials
type Store interface {
	Create(ctx context.Context, credentialType string) (*Credential, error)
	Get(ctx context.Context, id string) (*Credential, error)
	Load(ctx context.Context, id string) (*Credential, error)
	Update(ctx context.Context, id string, changes map[string]any) (*Credential, error)
	Delete(ctx context.Context, id string) error
}

var _ Store = (*CacheStore)(nil)

// CacheStore persists credentials as JSON records in a tiered cache.
// Records are written with the non-expiring TTL unless WithTTL says otherwise.
type CacheStore struct {
	cache   cache.LevelAwareCache
	types   registry.Lookup
	logger  logging.Logger
	metrics metrics.MetricsRecorder
	ttl     models.TTL
	now     func() time.Time

	// serializes read-modify-write within this process
	mu sync.Mutex
}

type Option func(*CacheStore)

func WithLogger(logger logging.Logger) Option {
	return func(s *CacheStore) {
		s.logger = logger
	}
}

func WithMetrics(m metrics.MetricsRecorder) Option {
	return func(s *CacheStore) {
		s.metrics = m
	}
}

// WithTTL expires records after ttl; the zero TTL keeps them forever
func WithTTL(ttl models.TTL) Option {
	return func(s *CacheStore) {
		s.ttl = ttl
	}
}

// NewCacheStore creates a store over c that resolves credential types through types
func NewCacheStore(c cache.LevelAwareCache, types registry.Lookup, opts ...Option) *CacheStore {
	s := &CacheStore{
		cache:   c,
		types:   types,
		logger:  logging.NoopLogger{},
		metrics: metrics.NewNoopMetrics(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Create stores a new credential of the named type holding each field's default
func (s *CacheStore) Create(ctx context.Context, credentialType string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d, err := s.types.Get(credentialType)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cred := &Credential{
		ID:        uuid.NewString(),
		Type:      d.Name,
		Values:    descriptor.Defaults(d),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.put(cred); err != nil {
		return nil, err
	}

	s.logger.Info("Created credential", "id", cred.ID, "type", cred.Type)
	return cred, nil
}

// Get returns the credential with the given id from the fastest tier that
// holds it. With a shared KeyDB, a change made by another host can take up to
// the l1 life window to show here; use Load where that matters.
func (s *CacheStore) Get(ctx context.Context, id string) (*Credential, error) {
	return s.read(ctx, id, s.cache.GetWithLevel)
}

// Load returns the credential as the backing tier holds it, refreshing the
// faster tiers on the way
func (s *CacheStore) Load(ctx context.Context, id string) (*Credential, error) {
	return s.read(ctx, id, s.cache.GetLatest)
}

func (s *CacheStore) read(ctx context.Context, id string, lookup func(string) *models.CacheResult) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := lookup(KeyPrefix + id)
	if !result.Found {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	var cred Credential
	if err := json.Unmarshal(result.Entry.Data, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credential %q: %w", id, err)
	}
	if cred.Values == nil {
		cred.Values = descriptor.Values{}
	}

	s.logger.Debug("Loaded credential", "id", id, "type", cred.Type, "level", result.Level.String())
	return &cred, nil
}

// Update applies changes to the credential's values. Each value is checked
// against its field's kind; if any change is rejected nothing is written.
func (s *CacheStore) Update(ctx context.Context, id string, changes map[string]any) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	d, err := s.types.Get(cred.Type)
	if err != nil {
		return nil, fmt.Errorf("credential %q: %w", id, err)
	}

	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)

	values := cred.Values.Clone()
	for _, name := range names {
		if err := values.Set(d, name, changes[name]); err != nil {
			s.metrics.RecordValueUpdate(d.Name, updateStatus(err))
			return nil, err
		}
	}

	cred.Values = values
	cred.UpdatedAt = s.now().UTC()

	if err := s.put(cred); err != nil {
		s.metrics.RecordValueUpdate(d.Name, "error")
		return nil, err
	}

	s.metrics.RecordValueUpdate(d.Name, "success")
	s.logger.Info("Updated credential",
		"id", id,
		"type", d.Name,
		"values", descriptor.Masked(d, values).String())

	return cred, nil
}

// Delete removes the credential with the given id
func (s *CacheStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Load(ctx, id); err != nil {
		return err
	}

	s.cache.Delete(KeyPrefix + id)
	s.logger.Info("Deleted credential", "id", id)
	return nil
}

func (s *CacheStore) put(cred *Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to encode credential %q: %w", cred.ID, err)
	}
	s.cache.Set(KeyPrefix+cred.ID, data, s.ttl)
	return nil
}

func updateStatus(err error) string {
	var mismatch *descriptor.KindMismatchError
	var unknown *descriptor.UnknownFieldError
	var invalid *descriptor.InvalidValueError
	switch {
	case errors.As(err, &mismatch):
		return "kind_mismatch"
	case errors.As(err, &unknown):
		return "unknown_field"
	case errors.As(err, &invalid):
		return "invalid_value"
	default:
		return "error"
	}
}
