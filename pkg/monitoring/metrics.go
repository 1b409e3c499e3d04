package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection. Each collector
// owns its vectors and registers them on the registry it was given.
type MetricsCollector struct {
	serviceName string
	gatherer    prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Ledger transaction metrics
	ledgerTransactionsTotal   *prometheus.CounterVec
	ledgerTransactionDuration *prometheus.HistogramVec
	ledgerPaused              *prometheus.GaugeVec
	prescriptionsIssued       *prometheus.GaugeVec

	// Identity assertion metrics
	authAttemptsTotal *prometheus.CounterVec

	// Audit pipeline metrics
	auditEventsTotal    *prometheus.CounterVec
	auditDeliveredTotal *prometheus.CounterVec
	auditDroppedTotal   *prometheus.CounterVec

	systemErrors *prometheus.CounterVec
}

// NewMetricsCollector creates a collector registered on registry. A nil
// registry uses a fresh private one.
func NewMetricsCollector(serviceName string, registry *prometheus.Registry) *MetricsCollector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &MetricsCollector{
		serviceName: serviceName,
		gatherer:    registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		ledgerTransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Total number of ledger operations by outcome",
			},
			[]string{"operation", "outcome", "service"},
		),
		ledgerTransactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_transaction_duration_seconds",
				Help:    "Duration of ledger operations in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "service"},
		),
		ledgerPaused: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledger_emergency_pause",
				Help: "1 while the emergency pause is in force",
			},
			[]string{"service"},
		),
		prescriptionsIssued: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledger_prescriptions_issued",
				Help: "Number of prescriptions issued",
			},
			[]string{"service"},
		),
		authAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_attempts_total",
				Help: "Total number of authentication attempts",
			},
			[]string{"method", "status", "service"},
		),
		auditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_events_total",
				Help: "Total number of committed audit events",
			},
			[]string{"event_type", "service"},
		),
		auditDeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_sink_deliveries_total",
				Help: "Total number of audit batches delivered to sinks",
			},
			[]string{"sink", "success", "service"},
		),
		auditDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_events_dropped_total",
				Help: "Audit events dropped because the dispatch buffer was full",
			},
			[]string{"service"},
		),
		systemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "system_errors_total",
				Help: "Total number of system errors",
			},
			[]string{"error_type", "service", "component"},
		),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.ledgerTransactionsTotal,
		m.ledgerTransactionDuration,
		m.ledgerPaused,
		m.prescriptionsIssued,
		m.authAttemptsTotal,
		m.auditEventsTotal,
		m.auditDeliveredTotal,
		m.auditDroppedTotal,
		m.systemErrors,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordLedgerTransaction records one ledger operation. outcome is "ok" or
// the error kind that rejected it.
func (m *MetricsCollector) RecordLedgerTransaction(operation, outcome string, duration time.Duration) {
	m.ledgerTransactionsTotal.WithLabelValues(operation, outcome, m.serviceName).Inc()
	m.ledgerTransactionDuration.WithLabelValues(operation, m.serviceName).Observe(duration.Seconds())
}

// SetPaused records the effective pause state
func (m *MetricsCollector) SetPaused(paused bool) {
	v := 0.0
	if paused {
		v = 1
	}
	m.ledgerPaused.WithLabelValues(m.serviceName).Set(v)
}

// SetPrescriptionsIssued records the prescription counter
func (m *MetricsCollector) SetPrescriptionsIssued(n uint64) {
	m.prescriptionsIssued.WithLabelValues(m.serviceName).Set(float64(n))
}

// RecordAuthAttempt records authentication attempt metrics
func (m *MetricsCollector) RecordAuthAttempt(method, status string) {
	m.authAttemptsTotal.WithLabelValues(method, status, m.serviceName).Inc()
}

// RecordAuditEvent records a committed audit event
func (m *MetricsCollector) RecordAuditEvent(eventType string) {
	m.auditEventsTotal.WithLabelValues(eventType, m.serviceName).Inc()
}

// RecordAuditDelivery records a batch handed to a sink
func (m *MetricsCollector) RecordAuditDelivery(sink string, success bool) {
	m.auditDeliveredTotal.WithLabelValues(sink, strconv.FormatBool(success), m.serviceName).Inc()
}

// RecordAuditDropped records events discarded by the dispatcher
func (m *MetricsCollector) RecordAuditDropped(n int) {
	m.auditDroppedTotal.WithLabelValues(m.serviceName).Add(float64(n))
}

// RecordSystemError records system error metrics
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	m.systemErrors.WithLabelValues(errorType, m.serviceName, component).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// HTTPMiddleware creates middleware for HTTP request metrics. endpoint
// labels come from route templates when a router provides them.
func (m *MetricsCollector) HTTPMiddleware(endpoint func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			path := r.URL.Path
			if endpoint != nil {
				path = endpoint(r)
			}
			m.RecordHTTPRequest(r.Method, path, strconv.Itoa(wrapper.statusCode), time.Since(start))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
