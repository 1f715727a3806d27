// internal/gateway/handler.go
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"eventgate/internal/auth"
	"eventgate/pkg/middleware"
	"eventgate/pkg/problems"
)

// Routes mounts the authenticated surface. The caller wraps these with the
// tenant, gate, and CSRF middleware; by the time a handler runs the request
// carries a resolved identity.
func (s *Service) Routes(r chi.Router) {
	r.Get("/v1/auth/whoami", s.whoami)
	r.Get("/v1/auth/csrf", s.issueCSRF)
	r.Post("/v1/auth/token", s.issueToken)
}

func (s *Service) whoami(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFrom(r.Context())
	if id == nil {
		problems.Write(w, http.StatusUnauthorized, string(auth.KindInvalidCredentials), "")
		return
	}
	resp := map[string]any{
		"tenant": id.Tenant.ID,
		"slug":   id.Tenant.Slug,
		"method": id.Method,
	}
	if id.Claims != nil {
		resp["scope"] = id.Claims.Scope
		resp["expiresAt"] = id.Claims.ExpiresAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// issueCSRF bootstraps a one-time anti-forgery token for the caller's next
// mutating request.
func (s *Service) issueCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := s.csrf.Issue(r.Context())
	if err != nil {
		s.log.Errorw("csrf issue", "err", err)
		problems.Write(w, http.StatusInternalServerError, "internal", "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

type issueTokenRequest struct {
	ExpirySeconds int            `json:"expirySeconds"`
	Scope         string         `json:"scope"`
	Claims        map[string]any `json:"claims"`
}

// issueToken mints a bearer token for the already-authenticated tenant. The
// tenant comes from the verified identity, never from the request body.
func (s *Service) issueToken(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFrom(r.Context())
	if id == nil {
		problems.Write(w, http.StatusUnauthorized, string(auth.KindInvalidCredentials), "")
		return
	}
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		problems.Write(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}
	issued, err := s.tokens.Issue(r.Context(), auth.IssueRequest{
		Tenant:        id.Tenant.ID,
		ExpirySeconds: req.ExpirySeconds,
		Scope:         req.Scope,
		Claims:        req.Claims,
	})
	if err != nil {
		s.log.Errorw("token issue", "tenant", id.Tenant.ID, "err", err)
		problems.Write(w, http.StatusInternalServerError, "internal", "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, issued)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
