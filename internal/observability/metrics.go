package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lead_router"

// Metrics holds the Prometheus collectors exported by the service.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	assignments     *prometheus.CounterVec
	assignRetries   *prometheus.CounterVec
	unassigned      *prometheus.CounterVec
	agentSyncs      *prometheus.CounterVec
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP errors by route, method and error code.",
		}, []string{"path", "method", "code"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "total",
			Help:      "Lead assignments by source and reason.",
		}, []string{"source", "reason"}),
		assignRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "retries_total",
			Help:      "Assignment attempts retried after a conflict or transient storage failure.",
		}, []string{"source"}),
		unassigned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "unassigned_total",
			Help:      "Leads stored without an eligible agent.",
		}, []string{"source"}),
		agentSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "agent_syncs_total",
			Help:      "Identity sync applications by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.errors,
		m.assignments,
		m.assignRetries,
		m.unassigned,
		m.agentSyncs,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordAssignment counts a committed assignment.
func (m *Metrics) RecordAssignment(source, reason string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(source, reason).Inc()
}

// RecordAssignmentRetry counts a retried assignment attempt.
func (m *Metrics) RecordAssignmentRetry(source string) {
	if m == nil {
		return
	}
	m.assignRetries.WithLabelValues(source).Inc()
}

// RecordUnassigned counts a lead stored without an assignee.
func (m *Metrics) RecordUnassigned(source string) {
	if m == nil {
		return
	}
	m.unassigned.WithLabelValues(source).Inc()
}

// RecordAgentSync counts an identity sync outcome: applied, unchanged, failed.
func (m *Metrics) RecordAgentSync(outcome string) {
	if m == nil {
		return
	}
	m.agentSyncs.WithLabelValues(outcome).Inc()
}
