package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calmux/internal/calendar/calendartest"
	"github.com/teemow/calmux/internal/notify"
)

type flakyNotifier struct {
	notify.Nop
	err error
}

func (n flakyNotifier) Healthy() error { return n.err }

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthChecker_WithoutContext(t *testing.T) {
	h := NewHealthChecker(nil, "1.2.3")

	rec := serve(t, h.LivenessHandler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(t, h.ReadinessHandler(), "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	h.SetReady(false)
	assert.False(t, h.IsReady())
	rec = serve(t, h.ReadinessHandler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusNotReady, resp.Checks["ready"])
}

func TestHealthChecker_Detailed(t *testing.T) {
	accounts := calendartest.NewAccounts(workAccount())
	sc, err := NewServerContext(context.Background(), Options{
		DefaultAccount: "work",
		Accounts:       []string{"home"},
		NewService:     accounts.Service,
		Notifier:       flakyNotifier{err: errors.New("nats connection is closed")},
	})
	require.NoError(t, err)
	_, err = sc.Service(context.Background(), "work")
	require.NoError(t, err)

	h := NewHealthChecker(sc, "1.2.3")
	mux := http.NewServeMux()
	h.RegisterHealthEndpoints(mux)

	rec := serve(t, mux, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code, "notifier failures do not fail readiness")
	var ready HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "nats connection is closed", ready.Checks["notifier"])

	rec = serve(t, mux, "/healthz/detailed")
	assert.Equal(t, http.StatusOK, rec.Code)
	var detailed DetailedHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detailed))
	assert.Equal(t, "1.2.3", detailed.Version)
	assert.Equal(t, []AccountHealth{
		{Account: "work", Authenticated: true},
		{Account: "home", Authenticated: false},
	}, detailed.Accounts)

	require.NoError(t, sc.Shutdown())
	rec = serve(t, mux, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = serve(t, mux, "/healthz/detailed")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
