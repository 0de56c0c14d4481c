package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument_LabelsByRoutePattern(t *testing.T) {
	m := NewMetrics()

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Post("/api/meals/{id}/glucose", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	for _, path := range []string{"/api/meals/1/glucose", "/api/meals/2/glucose"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPost, "/api/meals/{id}/glucose", "201"))
	assert.Equal(t, 2.0, got, "requests for different ids share one series")
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestMetrics_BusinessEvents(t *testing.T) {
	m := NewMetrics()

	m.LoginAttempt("success")
	m.LoginAttempt("success")
	m.LoginAttempt("invalid_credentials")
	m.MealCreated("upload")
	m.MealCreated("base64")
	m.GlucoseReadingCreated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("invalid_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mealsCreated.WithLabelValues("upload")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mealsCreated.WithLabelValues("base64")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readingsAdded))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.LoginAttempt("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `mealtrack_login_attempts_total{outcome="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.LoginAttempt("success")
		m.MealCreated("upload")
		m.GlucoseReadingCreated()
		m.RateLimited()
	})

	h := m.Instrument(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
