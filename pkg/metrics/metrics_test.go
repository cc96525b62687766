package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ReadingStored("main")
	m.ReadingRejected()
	m.SessionUpdated()
	m.CalculationFailed("main")
	m.CalculationInactive("main")
	m.CalculationActive("main", 1, 1, 1)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalculationGauges(t *testing.T) {
	m := New()

	m.CalculationActive("main", 10, 2, 10)
	assert.Equal(t, 10.0, testutil.ToFloat64(m.totalBaseline.WithLabelValues("main")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.currentTarget.WithLabelValues("main")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calculations.WithLabelValues("main", "active")))

	m.CalculationInactive("main")
	assert.Zero(t, testutil.ToFloat64(m.totalBaseline.WithLabelValues("main")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calculations.WithLabelValues("main", "inactive")))
}

func TestWrapHandlerAndExposition(t *testing.T) {
	m := New()
	m.ReadingStored("main")

	wrapped := m.WrapHandler("/baseline", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/baseline", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/baseline", "404")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `savings_consumption_readings_stored_total{meter="main"} 1`)
}
