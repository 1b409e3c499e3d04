package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/rxledger/internal/ledger"
	"github.com/medrex/rxledger/pkg/monitoring"
	"github.com/medrex/rxledger/pkg/types"
)

const testSecret = "gateway-test-secret"

var epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type testGateway struct {
	t       *testing.T
	service *Service
	ledger  *ledger.Ledger
	clock   *ledger.ManualClock
	tokens  *TokenValidator
}

type fakeArchive struct {
	events []types.AuditEvent
	err    error
	filter *types.AuditFilter
}

func (a *fakeArchive) Query(_ context.Context, filter *types.AuditFilter) ([]types.AuditEvent, error) {
	a.filter = filter
	return a.events, a.err
}

func newTestGateway(t *testing.T, config *Config, archive AuditArchive) *testGateway {
	t.Helper()
	clock := ledger.NewManualClock(epoch)
	l, err := ledger.New(context.Background(), ledger.Options{
		Clock:  clock,
		Admins: []types.Identity{"admin-1"},
	})
	require.NoError(t, err)

	if config == nil {
		config = &Config{}
	}
	config.JWTSecret = testSecret
	config.JWTIssuer = "rxledger"

	svc := NewService(config, Dependencies{
		Ledger:  l,
		Metrics: monitoring.NewMetricsCollector("rxledger", prometheus.NewRegistry()),
		Archive: archive,
	})
	return &testGateway{
		t:       t,
		service: svc,
		ledger:  l,
		clock:   clock,
		tokens:  NewTokenValidator(testSecret, "rxledger", ""),
	}
}

func (g *testGateway) do(method, path string, caller types.Identity, body interface{}) *httptest.ResponseRecorder {
	g.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(g.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token, err := g.tokens.GenerateToken(caller, time.Hour)
		require.NoError(g.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	g.service.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	errBody, ok := body["error"].(map[string]interface{})
	require.True(t, ok, rec.Body.String())
	return errBody["code"].(string)
}

// populate registers doctor-1, pharmacist-1 and patient-1 through the API
func (g *testGateway) populate() {
	g.t.Helper()
	rec := g.do(http.MethodPost, "/v1/doctors", "admin-1", map[string]interface{}{
		"identity":           "doctor-1",
		"license_content_id": "QmLicense",
		"license_expiry":     epoch.Add(365 * 24 * time.Hour).Format(time.RFC3339),
		"name":               "Dr. Grey",
		"specialization":     "cardiology",
	})
	require.Equal(g.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = g.do(http.MethodPost, "/v1/pharmacists", "admin-1", map[string]interface{}{
		"identity":      "pharmacist-1",
		"pharmacy_id":   "PH-001",
		"pharmacy_name": "Corner Pharmacy",
	})
	require.Equal(g.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = g.do(http.MethodPost, "/v1/patients", "patient-1", map[string]interface{}{
		"profile_content_id": "QmProfile",
	})
	require.Equal(g.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestGateway_Authentication(t *testing.T) {
	g := newTestGateway(t, nil, nil)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{name: "missing header", header: "", code: "MISSING_TOKEN"},
		{name: "wrong scheme", header: "Basic abc", code: "INVALID_TOKEN"},
		{name: "garbage token", header: "Bearer garbage", code: "INVALID_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/doctors", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			g.service.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	t.Run("health and metrics are public", func(t *testing.T) {
		rec := g.do(http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = g.do(http.MethodGet, "/metrics", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "auth_attempts_total")
	})
}

func TestGateway_PrescriptionLifecycle(t *testing.T) {
	g := newTestGateway(t, nil, nil)
	g.populate()

	rec := g.do(http.MethodPost, "/v1/prescriptions", "doctor-1", map[string]interface{}{
		"patient":     "patient-1",
		"expiry_date": epoch.Add(30 * 24 * time.Hour).Format(time.RFC3339),
		"content_ref": "QmRx1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	rx := body["prescription"].(map[string]interface{})
	assert.Equal(t, float64(1), rx["id"])
	assert.Equal(t, "QmRx1", body["token_uri"])

	rec = g.do(http.MethodGet, "/v1/tokens/1", "patient-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "patient-1", decode(t, rec)["owner"])

	rec = g.do(http.MethodPost, "/v1/tokens/1/transfer", "patient-1", map[string]interface{}{"to": "stranger"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.ErrCodeNonTransferable, errorCode(t, rec))

	rec = g.do(http.MethodPost, "/v1/prescriptions/1/fulfill", "doctor-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = g.do(http.MethodPost, "/v1/prescriptions/1/fulfill", "pharmacist-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rx = decode(t, rec)["prescription"].(map[string]interface{})
	assert.Equal(t, true, rx["is_fulfilled"])
	assert.Equal(t, "pharmacist-1", rx["fulfilled_by"])

	rec = g.do(http.MethodPost, "/v1/prescriptions/1/fulfill", "pharmacist-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.ErrCodeAlreadyFulfilled, errorCode(t, rec))

	rec = g.do(http.MethodGet, "/v1/tokens/1", "patient-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = g.do(http.MethodGet, "/v1/prescriptions/count", "patient-1", nil)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = g.do(http.MethodGet, "/v1/patients/me/prescriptions", "patient-1", nil)
	assert.Equal(t, []interface{}{float64(1)}, decode(t, rec)["prescription_ids"])
}

func TestGateway_ExpiredPrescription(t *testing.T) {
	g := newTestGateway(t, nil, nil)
	g.populate()

	rec := g.do(http.MethodPost, "/v1/prescriptions", "doctor-1", map[string]interface{}{
		"patient":     "patient-1",
		"expiry_date": epoch.Add(time.Hour).Format(time.RFC3339),
		"content_ref": "QmRx1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	g.clock.Advance(2 * time.Hour)
	rec = g.do(http.MethodPost, "/v1/prescriptions/1/fulfill", "pharmacist-1", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, types.ErrCodeExpired, errorCode(t, rec))
}

func TestGateway_Grants(t *testing.T) {
	g := newTestGateway(t, nil, nil)
	g.populate()

	rec := g.do(http.MethodPost, "/v1/grants", "patient-1", map[string]interface{}{
		"doctor":           "doctor-1",
		"data_fields":      []string{"Allergies", "medications"},
		"duration_seconds": 3600,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["is_granted"])
	grant := body["grant"].(map[string]interface{})
	assert.Equal(t, float64(1), grant["request_id"])
	assert.Equal(t, []interface{}{"allergies", "medications"}, grant["data_fields"])

	rec = g.do(http.MethodGet, "/v1/access-check?patient=patient-1&doctor=doctor-1&field=allergies", "doctor-1", nil)
	assert.Equal(t, true, decode(t, rec)["allowed"])

	rec = g.do(http.MethodGet, "/v1/patients/patient-1", "doctor-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = g.do(http.MethodPost, "/v1/grants/1/extend", "doctor-1", map[string]interface{}{"additional_seconds": 60})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = g.do(http.MethodPost, "/v1/grants/1/extend", "patient-1", map[string]interface{}{"additional_seconds": 3600})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = g.do(http.MethodPost, "/v1/grants/1/revoke", "patient-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["is_granted"])

	rec = g.do(http.MethodPost, "/v1/grants/1/revoke", "patient-1", nil)
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = g.do(http.MethodGet, "/v1/patients/patient-1/permissions", "patient-1", nil)
	assert.Equal(t, []interface{}{}, decode(t, rec)["grants"])

	rec = g.do(http.MethodGet, "/v1/grants/99", "patient-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = g.do(http.MethodGet, "/v1/access-check?patient=patient-1", "doctor-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGateway_GrantDurationBounds(t *testing.T) {
	g := newTestGateway(t, nil, nil)
	g.populate()

	grantBody := func(seconds int64) map[string]interface{} {
		return map[string]interface{}{
			"doctor":           "doctor-1",
			"data_fields":      []string{"name"},
			"duration_seconds": seconds,
		}
	}

	for _, seconds := range []int64{1 << 55, 18446744074, maxDurationSeconds + 1} {
		before := g.ledger.EventCount()
		rec := g.do(http.MethodPost, "/v1/grants", "patient-1", grantBody(seconds))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "duration_seconds=%d: %s", seconds, rec.Body.String())
		assert.Equal(t, types.ErrCodeInvalidInput, errorCode(t, rec))
		assert.Equal(t, before, g.ledger.EventCount())
	}

	rec := g.do(http.MethodPost, "/v1/grants", "patient-1", grantBody(maxDurationSeconds))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	grant := decode(t, rec)["grant"].(map[string]interface{})
	assert.Equal(t, false, grant["indefinite"])
	wantExpiry := epoch.Add(time.Duration(maxDurationSeconds) * time.Second)
	assert.Equal(t, wantExpiry.Format(time.RFC3339Nano), grant["expiry_time"])
	assert.NotContains(t, grant, "revoked_at")

	g.clock.Advance(100 * 365 * 24 * time.Hour)
	assert.True(t, g.ledger.IsGranted(1))

	rec = g.do(http.MethodPost, "/v1/grants/1/extend", "patient-1", map[string]interface{}{"additional_seconds": int64(1) << 55})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	got, err := g.ledger.GetGrant(1)
	require.NoError(t, err)
	assert.Equal(t, wantExpiry, *got.ExpiryTime)

	rec = g.do(http.MethodPost, "/v1/grants", "patient-1", grantBody(0))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	grant = decode(t, rec)["grant"].(map[string]interface{})
	assert.Equal(t, true, grant["indefinite"])
	assert.NotContains(t, grant, "expiry_time")
}

func TestSecondsToDuration(t *testing.T) {
	d, err := secondsToDuration("duration_seconds", 90)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = secondsToDuration("duration_seconds", maxDurationSeconds)
	require.NoError(t, err)
	assert.Positive(t, d)

	_, err = secondsToDuration("duration_seconds", maxDurationSeconds+1)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	_, err = secondsToDuration("additional_seconds", -1)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestGateway_RequestValidation(t *testing.T) {
	g := newTestGateway(t, nil, nil)

	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{name: "not json", path: "/v1/admins", body: "{"},
		{name: "missing field", path: "/v1/admins", body: map[string]interface{}{}},
		{name: "unknown field", path: "/v1/admins", body: map[string]interface{}{"identity": "x", "role": "admin"}},
		{name: "bad date", path: "/v1/doctors", body: map[string]interface{}{
			"identity": "d", "license_content_id": "c", "license_expiry": "tomorrow", "name": "n", "specialization": "s",
		}},
		{name: "negative duration", path: "/v1/grants", body: map[string]interface{}{
			"doctor": "d", "data_fields": []string{"name"}, "duration_seconds": -1,
		}},
		{name: "empty fields", path: "/v1/grants", body: map[string]interface{}{
			"doctor": "d", "data_fields": []string{},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := g.ledger.EventCount()
			rec := g.do(http.MethodPost, tt.path, "admin-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, types.ErrCodeInvalidInput, errorCode(t, rec))
			assert.Equal(t, before, g.ledger.EventCount())
		})
	}
}

func TestGateway_EmergencyPause(t *testing.T) {
	g := newTestGateway(t, nil, nil)

	rec := g.do(http.MethodPost, "/v1/pause", "patient-1", map[string]interface{}{"duration_hours": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = g.do(http.MethodPost, "/v1/pause", "admin-1", map[string]interface{}{"duration_hours": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["effective"])
	metrics := g.do(http.MethodGet, "/metrics", "", nil).Body.String()
	assert.Contains(t, metrics, `ledger_emergency_pause{service="rxledger"} 1`)

	rec = g.do(http.MethodPost, "/v1/patients", "patient-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, types.ErrCodeSystemPaused, errorCode(t, rec))

	g.clock.Advance(time.Hour)
	rec = g.do(http.MethodGet, "/v1/pause", "patient-1", nil)
	assert.Equal(t, false, decode(t, rec)["effective"])

	rec = g.do(http.MethodPost, "/v1/patients", "patient-1", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGateway_RolesAndAdmins(t *testing.T) {
	g := newTestGateway(t, nil, nil)
	g.populate()

	rec := g.do(http.MethodGet, "/v1/identities/doctor-1/roles", "patient-1", nil)
	assert.Equal(t, []interface{}{"doctor"}, decode(t, rec)["roles"])

	rec = g.do(http.MethodGet, "/v1/identities/doctor-1/roles?role=Doctor", "patient-1", nil)
	assert.Equal(t, true, decode(t, rec)["has_role"])

	rec = g.do(http.MethodGet, "/v1/identities/doctor-1/roles?role=nurse", "patient-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(http.MethodPost, "/v1/admins", "admin-1", map[string]interface{}{"identity": "admin-2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = g.do(http.MethodPost, "/v1/admins", "admin-1", map[string]interface{}{"identity": "admin-2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = g.do(http.MethodDelete, "/v1/admins/admin-2", "admin-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = g.do(http.MethodDelete, "/v1/doctors/doctor-1", "admin-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = g.do(http.MethodGet, "/v1/doctors/doctor-1/active", "patient-1", nil)
	assert.Equal(t, false, decode(t, rec)["active"])

	rec = g.do(http.MethodGet, "/v1/doctors", "patient-1", nil)
	assert.Equal(t, float64(0), decode(t, rec)["count"])

	rec = g.do(http.MethodGet, "/v1/pharmacists/pharmacist-1/verified", "patient-1", nil)
	assert.Equal(t, true, decode(t, rec)["verified"])
}

func TestGateway_TokenBaseURI(t *testing.T) {
	g := newTestGateway(t, nil, nil)
	g.populate()

	rec := g.do(http.MethodPut, "/v1/tokens/base-uri", "admin-1", map[string]interface{}{"base_uri": "ipfs://meta/"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = g.do(http.MethodPost, "/v1/prescriptions", "doctor-1", map[string]interface{}{
		"patient":     "patient-1",
		"expiry_date": epoch.Add(24 * time.Hour).Format(time.RFC3339),
		"content_ref": "QmRx1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = g.do(http.MethodGet, "/v1/tokens/1", "patient-1", nil)
	assert.Equal(t, "ipfs://meta/QmRx1", decode(t, rec)["token_uri"])
}

func TestGateway_AuditEvents(t *testing.T) {
	archive := &fakeArchive{events: []types.AuditEvent{{ID: "a", Sequence: 1, Name: types.EventAdminAdded}}}
	g := newTestGateway(t, nil, archive)
	g.populate()

	rec := g.do(http.MethodGet, "/v1/audit/events", "patient-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = g.do(http.MethodGet, "/v1/audit/events?name=DoctorRegistered", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "journal", body["source"])
	assert.Equal(t, float64(1), body["count"])

	rec = g.do(http.MethodGet, "/v1/audit/events?after=1&limit=2", "admin-1", nil)
	body = decode(t, rec)
	events := body["events"].([]interface{})
	require.Len(t, events, 2)
	assert.Equal(t, float64(2), events[0].(map[string]interface{})["sequence"])

	rec = g.do(http.MethodGet, "/v1/audit/events?source=archive&actor=admin-1", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "archive", decode(t, rec)["source"])
	assert.Equal(t, types.Identity("admin-1"), archive.filter.Actor)

	archive.err = errors.New("connection refused")
	rec = g.do(http.MethodGet, "/v1/audit/events?source=archive", "admin-1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")

	rec = g.do(http.MethodGet, "/v1/audit/events?limit=-1", "admin-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGateway_Middleware(t *testing.T) {
	g := newTestGateway(t, &Config{
		RateLimit:      2,
		RatePeriod:     time.Hour,
		AllowedOrigins: []string{"https://pharmacy.example"},
	}, nil)

	t.Run("request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec := httptest.NewRecorder()
		g.service.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	})

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/prescriptions", nil)
		req.Header.Set("Origin", "https://pharmacy.example")
		rec := httptest.NewRecorder()
		g.service.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://pharmacy.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("other origins get no cors headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/prescriptions", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		g.service.Handler().ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("rate limit per identity", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "/v1/pause", "doctor-9", nil).Code)
		assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "/v1/pause", "doctor-9", nil).Code)
		rec := g.do(http.MethodGet, "/v1/pause", "doctor-9", nil)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

		assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "/v1/pause", "doctor-8", nil).Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := map[types.ErrorKind]int{
		types.KindUnauthorized:         http.StatusForbidden,
		types.KindSystemPaused:         http.StatusServiceUnavailable,
		types.KindAlreadyRegistered:    http.StatusConflict,
		types.KindAlreadyExists:        http.StatusConflict,
		types.KindAlreadyFulfilled:     http.StatusConflict,
		types.KindNonTransferable:      http.StatusConflict,
		types.KindNotFound:             http.StatusNotFound,
		types.KindInvalidInput:         http.StatusBadRequest,
		types.KindInvalidTarget:        http.StatusBadRequest,
		types.KindPatientNotRegistered: http.StatusBadRequest,
		types.KindExpired:              http.StatusGone,
		types.KindGrantInactive:        http.StatusGone,
		types.KindInternal:             http.StatusInternalServerError,
	}
	for kind, status := range tests {
		t.Run(strings.ToLower(string(kind)), func(t *testing.T) {
			assert.Equal(t, status, statusFor(kind))
		})
	}
}
