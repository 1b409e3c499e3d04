package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestMetricsCollector_IsolatedRegistries(t *testing.T) {
	first := NewMetricsCollector("rxledger", prometheus.NewRegistry())
	second := NewMetricsCollector("rxledger", prometheus.NewRegistry())

	first.RecordLedgerTransaction("create_prescription", "ok", time.Millisecond)
	first.RecordLedgerTransaction("create_prescription", "unauthorized", time.Millisecond)
	second.RecordAuditDropped(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(first.ledgerTransactionsTotal.WithLabelValues("create_prescription", "ok", "rxledger")))
	assert.Equal(t, 3.0, testutil.ToFloat64(second.auditDroppedTotal.WithLabelValues("rxledger")))
	assert.Equal(t, 0.0, testutil.ToFloat64(first.auditDroppedTotal.WithLabelValues("rxledger")))
}

func TestMetricsCollector_Gauges(t *testing.T) {
	m := NewMetricsCollector("rxledger", nil)

	m.SetPaused(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerPaused.WithLabelValues("rxledger")))
	m.SetPaused(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ledgerPaused.WithLabelValues("rxledger")))

	m.SetPrescriptionsIssued(12)
	assert.Equal(t, 12.0, testutil.ToFloat64(m.prescriptionsIssued.WithLabelValues("rxledger")))
}

func TestMetricsCollector_HTTPMiddlewareAndHandler(t *testing.T) {
	m := NewMetricsCollector("rxledger", prometheus.NewRegistry())

	handler := m.HTTPMiddleware(func(*http.Request) string { return "/v1/prescriptions/{id}" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}),
	)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/prescriptions/9", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/v1/prescriptions/{id}", "404", "rxledger")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestHealthManager(t *testing.T) {
	tests := []struct {
		name       string
		checkers   map[string]HealthChecker
		wantStatus HealthStatus
		wantCode   int
	}{
		{
			name:       "all healthy",
			checkers:   map[string]HealthChecker{"store": NewPingHealthChecker(fakePinger{}, false)},
			wantStatus: HealthStatusHealthy,
			wantCode:   http.StatusOK,
		},
		{
			name: "optional dependency down",
			checkers: map[string]HealthChecker{
				"store": NewPingHealthChecker(fakePinger{}, false),
				"redis": NewPingHealthChecker(fakePinger{err: errors.New("refused")}, true),
			},
			wantStatus: HealthStatusDegraded,
			wantCode:   http.StatusOK,
		},
		{
			name:       "required dependency down",
			checkers:   map[string]HealthChecker{"store": NewPingHealthChecker(fakePinger{err: errors.New("closed")}, false)},
			wantStatus: HealthStatusUnhealthy,
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm := NewHealthManager("rxledger", "test")
			for name, c := range tt.checkers {
				hm.RegisterChecker(name, c)
			}

			rec := httptest.NewRecorder()
			hm.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			var report HealthReport
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Len(t, report.Checks, len(tt.checkers))
		})
	}
}

func TestNoopTracingManager(t *testing.T) {
	tm, err := NewTracingManager(&TracingConfig{Enabled: false})
	require.NoError(t, err)

	ctx, span := tm.StartLedgerSpan(context.Background(), "grant_access", "patient-1")
	tm.RecordError(span, errors.New("boom"))
	span.End()

	assert.Empty(t, tm.TraceIDFromContext(ctx))
	assert.NoError(t, tm.Shutdown(context.Background()))
}
