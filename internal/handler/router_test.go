package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/helpyourself/companion/backend/internal/service/assessment"
	chatService "github.com/helpyourself/companion/backend/internal/service/chat"
	"github.com/helpyourself/companion/backend/internal/service/review"
	"github.com/helpyourself/companion/backend/internal/storage"
	"github.com/helpyourself/companion/backend/internal/telemetry"
)

func newTestRouter(t *testing.T, health map[string]HealthCheck) http.Handler {
	t.Helper()
	hub := storage.NewHub(storage.NewMemoryStore(), nil)
	metrics := telemetry.New()
	coordinator := chatService.NewCoordinator(hub, nil, chatService.Options{Metrics: metrics}, nil)
	t.Cleanup(coordinator.Close)

	return NewRouter(Dependencies{
		Chat:           coordinator,
		Watcher:        hub,
		Assessments:    assessment.NewRunner(hub, assessment.Options{Metrics: metrics}, nil),
		Reviews:        review.New(hub, nil, nil),
		Metrics:        metrics,
		Health:         health,
		AllowedOrigins: []string{"*"},
	})
}

func get(h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealthz(t *testing.T) {
	ok := newTestRouter(t, map[string]HealthCheck{"storage": func(context.Context) error { return nil }})
	if resp := get(ok, "/healthz"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	failing := newTestRouter(t, map[string]HealthCheck{"cloud": func(context.Context) error { return errors.New("down") }})
	resp := get(failing, "/healthz")
	if resp.Code != http.StatusServiceUnavailable || !strings.Contains(resp.Body.String(), "down") {
		t.Fatalf("expected 503 with reason, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	resp := get(newTestRouter(t, nil), "/metrics")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "go_goroutines") {
		t.Fatalf("expected prometheus exposition, got %d", resp.Code)
	}
}

func TestAPIRoutesMounted(t *testing.T) {
	r := newTestRouter(t, nil)
	if resp := get(r, "/api/categories"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for categories, got %d", resp.Code)
	}
	if resp := get(r, "/api/sessions"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for sessions, got %d", resp.Code)
	}
	if resp := get(r, "/api/metrics/latest", "X-User-ID", "u1"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without cloud store, got %d", resp.Code)
	}
	if resp := get(r, "/api/resources?query=x"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without search client, got %d", resp.Code)
	}
}

func TestCORSHeader(t *testing.T) {
	resp := get(newTestRouter(t, nil), "/api/categories", "Origin", "https://app.example")
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard CORS, got %q", got)
	}
}
