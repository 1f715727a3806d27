package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"eventgate/internal/auth"
	"eventgate/pkg/cache"
	"eventgate/pkg/middleware"
	"eventgate/pkg/tenants"
)

const tenantSecret = "the-acme-shared-secret"

func newTestRouter(t *testing.T) (chi.Router, *auth.CSRFService) {
	t.Helper()
	dir := tenants.NewStaticDirectory(tenants.Tenant{
		ID:             "t1",
		Slug:           "acme",
		Secret:         tenantSecret,
		Hosts:          []string{"events.acme.test"},
		AllowedOrigins: []string{"https://events.acme.com"},
	})
	log := zap.NewNop().Sugar()
	store := cache.NewMemory()
	locks := cache.NewMemoryLocker()

	tokens := auth.NewTokenService(dir, log, 0)
	csrf := auth.NewCSRFService(store, locks, log, 0, 0)
	limiter := auth.NewRateLimiter(store, log, 1000, 0, 0)
	gate := auth.NewGate(dir, tokens, limiter, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.WithTenant(dir))
	r.Use(middleware.CORS())
	r.Use(middleware.RequireCSRF(csrf))
	r.Use(middleware.Authenticate(gate, log))
	r.Get("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		id := middleware.IdentityFrom(r.Context())
		w.Write([]byte("pong " + id.Tenant.Slug))
	})
	r.Post("/v1/update", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r, csrf
}

func authedRequest(method, path string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	r.Host = "events.acme.test"
	r.Header.Set("X-API-Key", tenantSecret)
	return r
}

func TestMiddleware_HostResolvesTenant(t *testing.T) {
	router, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodGet, "/v1/ping"))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "acme") {
		t.Errorf("status=%d body=%q", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("request id header missing")
	}
}

func TestMiddleware_TenantHeaderFallback(t *testing.T) {
	router, _ := newTestRouter(t)
	r := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	r.Host = "shared-gateway.internal"
	r.Header.Set("X-Tenant-ID", "acme")
	r.Header.Set("X-API-Key", tenantSecret)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestMiddleware_UnknownHost(t *testing.T) {
	router, _ := newTestRouter(t)
	r := authedRequest(http.MethodGet, "/v1/ping")
	r.Host = "nobody.example.net"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestMiddleware_BadCredentialIsProblemJSON(t *testing.T) {
	router, _ := newTestRouter(t)
	r := authedRequest(http.MethodGet, "/v1/ping")
	r.Header.Set("X-API-Key", "wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "invalid_credentials") {
		t.Errorf("body should carry the generic kind, got %q", w.Body.String())
	}
}

func TestMiddleware_MutationRequiresCSRF(t *testing.T) {
	router, csrf := newTestRouter(t)

	// Without a token the mutation is rejected before auth runs.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(http.MethodPost, "/v1/update"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	token, err := csrf.Issue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r := authedRequest(http.MethodPost, "/v1/update")
	r.Header.Set(middleware.CSRFHeader, token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	// Replaying the consumed token fails.
	r = authedRequest(http.MethodPost, "/v1/update")
	r.Header.Set(middleware.CSRFHeader, token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("replay status = %d, want 403", w.Code)
	}
}

func TestMiddleware_CORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)
	r := httptest.NewRequest(http.MethodOptions, "/v1/update", nil)
	r.Host = "events.acme.test"
	r.Header.Set("Origin", "https://events.acme.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://events.acme.com" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestMiddleware_OriginlessWithoutCredentials(t *testing.T) {
	router, _ := newTestRouter(t)
	r := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	r.Host = "events.acme.test"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if !strings.Contains(w.Body.String(), "origin_rejected") {
		t.Errorf("body = %q", w.Body.String())
	}
}
