// Package metrics exports Prometheus series for the cache tiers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/status-im/credential-host/cache"
)

const (
	DefaultNamespace = "credhost"
	DefaultSubsystem = "store_cache"
)

// ageBuckets span a second to a week; stored credentials live long
var ageBuckets = []float64{1, 10, 60, 600, 3600, 6 * 3600, 24 * 3600, 7 * 24 * 3600}

var _ cache.MetricsRecorder = (*CacheMetrics)(nil)

// Config names the series and picks where they are registered
type Config struct {
	Namespace string
	Subsystem string
	// Registerer defaults to prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// CacheMetrics records tier activity for the credential values store
type CacheMetrics struct {
	namespace string
	subsystem string

	Hits         *prometheus.CounterVec
	Misses       prometheus.Counter
	Sets         *prometheus.CounterVec
	Deletes      *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	BytesWritten *prometheus.CounterVec

	OperationDuration *prometheus.HistogramVec
	ItemAge           *prometheus.HistogramVec

	Keys     *prometheus.GaugeVec
	Capacity *prometheus.GaugeVec
	Used     *prometheus.GaugeVec
}

// New registers the cache series with cfg.Registerer
func New(cfg Config) *CacheMetrics {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = DefaultSubsystem
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	f := promauto.With(cfg.Registerer)
	counter := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help}
	}
	gauge := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help}
	}
	histogram := func(name, help string, buckets []float64) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help, Buckets: buckets}
	}

	return &CacheMetrics{
		namespace: cfg.Namespace,
		subsystem: cfg.Subsystem,

		Hits:         f.NewCounterVec(counter("hits_total", "Lookups answered, by tier"), []string{"level"}),
		Misses:       f.NewCounter(counter("misses_total", "Lookups no tier could answer")),
		Sets:         f.NewCounterVec(counter("sets_total", "Entries written, by tier"), []string{"level"}),
		Deletes:      f.NewCounterVec(counter("deletes_total", "Entries removed, by tier"), []string{"level"}),
		Errors:       f.NewCounterVec(counter("errors_total", "Tier failures by kind"), []string{"level", "kind"}),
		BytesWritten: f.NewCounterVec(counter("bytes_written_total", "Encoded bytes written, by tier"), []string{"level"}),

		OperationDuration: f.NewHistogramVec(
			histogram("operation_duration_seconds", "Time spent in tier operations", prometheus.DefBuckets),
			[]string{"operation", "level"}),
		ItemAge: f.NewHistogramVec(
			histogram("item_age_seconds", "Age of an entry when it is read", ageBuckets),
			[]string{"level"}),

		Keys:     f.NewGaugeVec(gauge("keys", "Entries currently held, by tier"), []string{"level"}),
		Capacity: f.NewGaugeVec(gauge("capacity_bytes", "Bytes allocated by the in-process tier"), []string{"level"}),
		Used:     f.NewGaugeVec(gauge("lookups", "Lookups served by the in-process tier since start"), []string{"level"}),
	}
}

func (m *CacheMetrics) RecordCacheHit(level string, itemAge time.Duration) {
	m.Hits.WithLabelValues(level).Inc()
	if itemAge > 0 {
		m.ItemAge.WithLabelValues(level).Observe(itemAge.Seconds())
	}
}

func (m *CacheMetrics) RecordCacheMiss() {
	m.Misses.Inc()
}

// RecordCacheSet counts a write and the encoded size it stored
func (m *CacheMetrics) RecordCacheSet(level string, dataSize int) {
	m.Sets.WithLabelValues(level).Inc()
	if dataSize > 0 {
		m.BytesWritten.WithLabelValues(level).Add(float64(dataSize))
	}
}

func (m *CacheMetrics) RecordCacheDelete(level string) {
	m.Deletes.WithLabelValues(level).Inc()
}

func (m *CacheMetrics) RecordCacheError(level, kind string) {
	m.Errors.WithLabelValues(level, kind).Inc()
}

// UpdateL1CacheCapacity only has an l1 series; the shared tier has no fixed size
func (m *CacheMetrics) UpdateL1CacheCapacity(capacity, used int64) {
	m.Capacity.WithLabelValues("l1").Set(float64(capacity))
	m.Used.WithLabelValues("l1").Set(float64(used))
}

func (m *CacheMetrics) UpdateCacheKeys(level string, count int64) {
	m.Keys.WithLabelValues(level).Set(float64(count))
}

// TimeCacheOperation returns a func that observes the elapsed time when called
func (m *CacheMetrics) TimeCacheOperation(operation, level string) func() {
	timer := prometheus.NewTimer(m.OperationDuration.WithLabelValues(operation, level))
	return func() { timer.ObserveDuration() }
}
