package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"paypadm/core/pkg/logging"
	"paypadm/core/pkg/monitoring"
)

func TestSetupServiceRouter(t *testing.T) {
	logger := logging.NewLogger()
	hc := monitoring.NewHealthChecker("svc", "test")
	mc := monitoring.NewMetricsCollector("svc", "test", "none")
	r := SetupServiceRouter(logger, "svc", hc, mc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", w.Code)
	}
}

func TestSetupServiceRouterWithoutMonitoring(t *testing.T) {
	logger := logging.NewLogger()
	r := SetupServiceRouter(logger, "svc", nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", w.Code)
	}
}
