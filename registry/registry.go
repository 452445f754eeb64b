// Package registry holds the credential types known to a host, keyed by name.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/status-im/credential-host/descriptor"
	"github.com/status-im/credential-host/logging"
	"github.com/status-im/credential-host/metrics"
)

// ErrNotFound is returned when no credential type has the requested name
var ErrNotFound = errors.New("credential type not found")

// Lookup is the read side of a Registry
type Lookup interface {
	Get(name string) (*descriptor.Descriptor, error)
}

var _ Lookup = (*Registry)(nil)

// Registry maps descriptor names to descriptors. Registration is explicit;
// there is no package-level registry.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*descriptor.Descriptor
	logger      logging.Logger
	metrics     metrics.MetricsRecorder
}

type Option func(*Registry)

func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m metrics.MetricsRecorder) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		descriptors: make(map[string]*descriptor.Descriptor),
		logger:      logging.NoopLogger{},
		metrics:     metrics.NewNoopMetrics(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register validates d and adds a private copy of it. On error the registry is unchanged.
func (r *Registry) Register(d *descriptor.Descriptor) error {
	if err := descriptor.Validate(d); err != nil {
		r.metrics.RecordRegistration(registrationStatus(err))
		return err
	}

	stored := d.Clone()

	r.mu.Lock()
	if _, exists := r.descriptors[stored.Name]; exists {
		r.mu.Unlock()
		r.metrics.RecordRegistration("duplicate")
		return &descriptor.DuplicateNameError{Name: stored.Name}
	}
	r.descriptors[stored.Name] = stored
	count := len(r.descriptors)
	r.mu.Unlock()

	r.metrics.RecordRegistration("success")
	r.metrics.SetRegisteredTypes(count)
	r.logger.Info("Registered credential type", "name", stored.Name, "fields", len(stored.Fields))

	return nil
}

// MustRegister is Register that panics on error, for descriptors compiled into the host
func (r *Registry) MustRegister(d *descriptor.Descriptor) {
	if err := r.Register(d); err != nil {
		panic(fmt.Sprintf("failed to register credential type: %v", err))
	}
}

// Get returns a copy of the named descriptor
func (r *Registry) Get(name string) (*descriptor.Descriptor, error) {
	r.mu.RLock()
	d, ok := r.descriptors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return d.Clone(), nil
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.descriptors[name]
	return ok
}

// List returns copies of all descriptors sorted by name
func (r *Registry) List() []*descriptor.Descriptor {
	r.mu.RLock()
	out := make([]*descriptor.Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered descriptors
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

func registrationStatus(err error) string {
	var malformed *descriptor.MalformedTemplateError
	if errors.As(err, &malformed) {
		return "malformed_template"
	}
	return "invalid"
}
