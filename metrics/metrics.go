package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder records credential host events
type MetricsRecorder interface {
	RecordRegistration(status string)
	SetRegisteredTypes(count int)
	RecordApply(credentialType, status string)
	RecordValueUpdate(credentialType, status string)
	RecordAPIRequest(route string, code int)
	RecordOutboundRequest(credentialType, outcome string)
}

type NoopMetrics struct{}

func NewNoopMetrics() MetricsRecorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordRegistration(status string) {}

func (n *NoopMetrics) SetRegisteredTypes(count int) {}

func (n *NoopMetrics) RecordApply(credentialType, status string) {}

func (n *NoopMetrics) RecordValueUpdate(credentialType, status string) {}

func (n *NoopMetrics) RecordAPIRequest(route string, code int) {}

func (n *NoopMetrics) RecordOutboundRequest(credentialType, outcome string) {}

type PrometheusMetrics struct {
	registrations   *prometheus.CounterVec
	registeredTypes prometheus.Gauge
	applies         *prometheus.CounterVec
	valueUpdates    *prometheus.CounterVec
	apiRequests     *prometheus.CounterVec
	outbound        *prometheus.CounterVec
}

func NewPrometheusMetrics() MetricsRecorder {
	return &PrometheusMetrics{
		registrations:   Registrations,
		registeredTypes: RegisteredTypes,
		applies:         Applies,
		valueUpdates:    ValueUpdates,
		apiRequests:     APIRequests,
		outbound:        OutboundRequests,
	}
}

func (p *PrometheusMetrics) RecordRegistration(status string) {
	p.registrations.WithLabelValues(status).Inc()
}

func (p *PrometheusMetrics) SetRegisteredTypes(count int) {
	p.registeredTypes.Set(float64(count))
}

func (p *PrometheusMetrics) RecordApply(credentialType, status string) {
	p.applies.WithLabelValues(credentialType, status).Inc()
}

func (p *PrometheusMetrics) RecordValueUpdate(credentialType, status string) {
	p.valueUpdates.WithLabelValues(credentialType, status).Inc()
}

func (p *PrometheusMetrics) RecordAPIRequest(route string, code int) {
	p.apiRequests.WithLabelValues(route, statusClass(code)).Inc()
}

func (p *PrometheusMetrics) RecordOutboundRequest(credentialType, outcome string) {
	p.outbound.WithLabelValues(credentialType, outcome).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "other"
	}
}

var (
	// Registrations counts descriptor registration attempts
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credhost_registrations_total",
		Help: "The total number of credential type registration attempts",
	}, []string{"status"}) // status: "success", "duplicate", "malformed_template", "invalid"

	// RegisteredTypes is the number of credential types currently registered
	RegisteredTypes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "credhost_registered_types",
		Help: "The number of registered credential types",
	})

	// Applies counts header renderings for outgoing requests
	Applies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credhost_auth_applies_total",
		Help: "The total number of authentication header renderings",
	}, []string{"type", "status"}) // status: "success", "missing_field", "error"

	// ValueUpdates counts credential value writes
	ValueUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credhost_value_updates_total",
		Help: "The total number of credential value updates",
	}, []string{"type", "status"}) // status: "success", "kind_mismatch", "unknown_field"

	// APIRequests counts admin API requests
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credhost_api_requests_total",
		Help: "The total number of admin API requests",
	}, []string{"route", "code"})

	// OutboundRequests counts attempts of requests sent with a stored credential
	OutboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credhost_outbound_requests_total",
		Help: "The total number of request attempts made with stored credentials",
	}, []string{"type", "outcome"}) // outcome: "success", "retryable", "rejected", "error"
)
