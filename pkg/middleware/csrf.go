// pkg/middleware/csrf.go
package middleware

import (
	"net/http"

	"eventgate/internal/auth"
	"eventgate/pkg/problems"
)

// CSRFHeader carries the one-time token on mutating requests.
const CSRFHeader = "X-CSRF-Token"

// RequireCSRF enforces one-time anti-forgery tokens on mutating verbs.
// Validation consumes the token; a replayed or absent token is rejected
// identically, so callers learn nothing about whether the value ever
// existed.
func RequireCSRF(csrf *auth.CSRFService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get(CSRFHeader)
			if !csrf.ValidateAndConsume(r.Context(), token) {
				ObserveCSRF("rejected")
				problems.Write(w, http.StatusForbidden, string(auth.KindCSRFInvalid), "")
				return
			}
			ObserveCSRF("consumed")
			next.ServeHTTP(w, r)
		})
	}
}
