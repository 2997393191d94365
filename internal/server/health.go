package server

import (
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker serves the Kubernetes probes:
//
//	/healthz           the process is up
//	/readyz            the server accepts MCP and API traffic
//	/healthz/detailed  version, uptime, notifier and per-account token state
type HealthChecker struct {
	ready   atomic.Bool
	sc      *ServerContext
	started time.Time
	version string
}

// NewHealthChecker returns a checker that starts ready. sc may be nil.
func NewHealthChecker(sc *ServerContext, version string) *HealthChecker {
	h := &HealthChecker{sc: sc, started: time.Now(), version: version}
	h.ready.Store(true)
	return h
}

// SetReady flips readiness, typically to false when shutdown begins.
func (h *HealthChecker) SetReady(ready bool) { h.ready.Store(ready) }

func (h *HealthChecker) IsReady() bool { return h.ready.Load() }

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// AccountHealth reports whether an account has a stored token.
type AccountHealth struct {
	Account       string `json:"account"`
	Authenticated bool   `json:"authenticated"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version,omitempty"`
	Uptime   string          `json:"uptime"`
	Notifier string          `json:"notifier,omitempty"`
	Accounts []AccountHealth `json:"accounts,omitempty"`
}

// state returns the overall status and the HTTP code that goes with it.
func (h *HealthChecker) state() (string, int) {
	switch {
	case !h.ready.Load():
		return healthStatusNotReady, http.StatusServiceUnavailable
	case h.sc != nil && h.sc.IsShutdown():
		return healthStatusShuttingDown, http.StatusServiceUnavailable
	}
	return healthStatusOK, http.StatusOK
}

// notifierStatus is "" without a server context.
func (h *HealthChecker) notifierStatus() string {
	if h.sc == nil {
		return ""
	}
	if err := h.sc.NotifierHealthy(); err != nil {
		return err.Error()
	}
	return healthStatusOK
}

func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler fails while the checker is not ready or the server context
// is shut down. The notifier is reported but never fails readiness.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := map[string]string{"ready": healthStatusOK, "shutdown": healthStatusOK}
		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
		}
		if h.sc != nil && h.sc.IsShutdown() {
			checks["shutdown"] = healthStatusShuttingDown
		}
		if n := h.notifierStatus(); n != "" {
			checks["notifier"] = n
		}

		status, code := h.state()
		if code != http.StatusOK {
			status = healthStatusNotReady
		}
		writeJSON(w, code, HealthResponse{Status: status, Checks: checks})
	})
}

func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status, code := h.state()
		resp := DetailedHealthResponse{
			Status:   status,
			Version:  h.version,
			Uptime:   time.Since(h.started).Truncate(time.Second).String(),
			Notifier: h.notifierStatus(),
		}
		if h.sc != nil {
			for _, account := range h.sc.Accounts() {
				resp.Accounts = append(resp.Accounts, AccountHealth{
					Account:       account,
					Authenticated: h.sc.HasToken(account),
				})
			}
		}
		writeJSON(w, code, resp)
	})
}

// RegisterHealthEndpoints mounts the three probes on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
