package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordRotation(RotationOutcomeRotated)
	m.RecordRotation(RotationOutcomeRotated)
	m.RecordRotation(RotationOutcomeReuse)
	m.RecordRevocation(RevocationReasonReuse, 3)
	m.RecordRevocation(RevocationReasonLogout, 0)
	m.RecordSessionIssued()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.rotations.WithLabelValues(RotationOutcomeRotated)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rotations.WithLabelValues(RotationOutcomeReuse)))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.revocations.WithLabelValues(RevocationReasonReuse)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.revocations.WithLabelValues(RevocationReasonLogout)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sessionsIssued))
}

func TestMetricsServiceHandler(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/auth/refresh", http.StatusOK, 10*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
	assert.Contains(t, rec.Body.String(), "cache_hits_total 1")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordRotation(RotationOutcomeInvalid)
	m.RecordRevocation(RevocationReasonAdmin, 1)
	m.ObserveStoreOperation("rotate", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
