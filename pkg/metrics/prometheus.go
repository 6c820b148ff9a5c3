package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the call service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Call Metrics
	callsCreatedTotal    *prometheus.CounterVec
	callConflictsTotal   *prometheus.CounterVec
	callTransitionsTotal *prometheus.CounterVec
	callCleanupsTotal    *prometheus.CounterVec

	// Listener Metrics
	listenersActive        prometheus.Gauge
	dispatchTotal          *prometheus.CounterVec
	dispatchFailuresTotal  *prometheus.CounterVec
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics on a fresh registry that also carries the Go and process collectors
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		callsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_created_total",
				Help:        "Total number of calls created",
				ConstLabels: labels,
			},
			[]string{"provider", "kind"},
		),
		callConflictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_conflicts_total",
				Help:        "Total number of rejected call creations by reason",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		callTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_transitions_total",
				Help:        "Total number of persisted call operations",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
		callCleanupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_cleanups_total",
				Help:        "Total number of calls deleted by cleanup",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),

		listenersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "call_listeners_active",
				Help:        "Number of registered call listeners",
				ConstLabels: labels,
			},
		),
		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_events_dispatched_total",
				Help:        "Total number of call events delivered to listeners",
				ConstLabels: labels,
			},
			[]string{"event"},
		),
		dispatchFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_event_dispatch_failures_total",
				Help:        "Total number of listener invocations that panicked or timed out",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),
	}
}

// Registry returns the registry backing the /metrics endpoint
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// HTTP Request Metrics Methods

func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Inc()
}

func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.httpRequestsInFlight.Dec()
}

// Call Metrics Methods

func (m *Metrics) RecordCallCreated(providerType string, group bool) {
	if m == nil {
		return
	}
	kind := "p2p"
	if group {
		kind = "group"
	}
	m.callsCreatedTotal.WithLabelValues(providerType, kind).Inc()
}

func (m *Metrics) RecordCallConflict(reason string) {
	if m == nil {
		return
	}
	m.callConflictsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordCallTransition(operation string) {
	if m == nil {
		return
	}
	m.callTransitionsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordCallCleanup(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.callCleanupsTotal.WithLabelValues(kind).Add(float64(count))
}

// Listener Metrics Methods

func (m *Metrics) SetListeners(count int) {
	if m == nil {
		return
	}
	m.listenersActive.Set(float64(count))
}

func (m *Metrics) RecordDispatch(event string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordDispatchFailure(reason string) {
	if m == nil {
		return
	}
	m.dispatchFailuresTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncWebSocketConnections() {
	if m == nil {
		return
	}
	m.websocketConnections.Inc()
}

func (m *Metrics) DecWebSocketConnections() {
	if m == nil {
		return
	}
	m.websocketConnections.Dec()
}

func (m *Metrics) RecordWebSocketMessage(direction string) {
	if m == nil {
		return
	}
	m.websocketMessagesTotal.WithLabelValues(direction).Inc()
}
