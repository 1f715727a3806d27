// pkg/middleware/authgate.go
package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"eventgate/internal/auth"
	"eventgate/pkg/problems"
)

type ctxIdentityKey struct{}

// Authenticate runs every request through the authentication gate and
// stores the resolved identity in context. Failures are rendered as
// problem+json with the typed kind; the handler chain never sees an
// unauthenticated request.
func Authenticate(gate *auth.Gate, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := TenantFrom(r.Context())
			req := gateRequest(r)
			id, err := gate.Authenticate(r.Context(), req, t.ID)
			if err != nil {
				ObserveAuth(string(methodOf(id)), string(statusKind(err)))
				writeAuthError(w, err)
				return
			}
			ObserveAuth(string(id.Method), "ok")
			ctx := context.WithValue(r.Context(), ctxIdentityKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom returns the identity stored by Authenticate, or nil.
func IdentityFrom(ctx context.Context) *auth.Identity {
	if v := ctx.Value(ctxIdentityKey{}); v != nil {
		return v.(*auth.Identity)
	}
	return nil
}

// gateRequest extracts the auth-relevant slice of the HTTP request once.
func gateRequest(r *http.Request) *auth.Request {
	form := map[string]string{}
	query := map[string]string{}
	// Parse form data for mutating verbs only; GET bodies are not credential
	// carriers.
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		if err := r.ParseForm(); err == nil {
			for k, vs := range r.PostForm {
				if len(vs) > 0 {
					form[k] = vs[0]
				}
			}
		}
	}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}
	return &auth.Request{
		Authorization: r.Header.Get("Authorization"),
		APIKey:        r.Header.Get("X-API-Key"),
		Origin:        r.Header.Get("Origin"),
		ClientID:      clientID(r),
		Form:          form,
		Query:         query,
	}
}

// clientID derives a stable caller identifier for lockout tracking: the
// first X-Forwarded-For hop when present, else the remote IP.
func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func methodOf(id *auth.Identity) auth.Method {
	if id == nil {
		return "none"
	}
	return id.Method
}

func statusKind(err error) auth.Kind {
	if k := auth.KindOf(err); k != "" {
		return k
	}
	return "internal"
}

// writeAuthError maps typed auth errors onto HTTP statuses and problem
// responses. Untyped errors are configuration faults and map to 500.
func writeAuthError(w http.ResponseWriter, err error) {
	kind := auth.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case auth.KindUnknownTenant:
		status = http.StatusNotFound
	case auth.KindInvalidCredentials,
		auth.KindBadTokenFormat, auth.KindBadAlgorithm, auth.KindTokenExpired,
		auth.KindTokenNotYetValid, auth.KindBadSignature, auth.KindTenantMismatch:
		status = http.StatusUnauthorized
	case auth.KindOriginRejected, auth.KindCSRFInvalid:
		status = http.StatusForbidden
	case auth.KindRateLimited, auth.KindLockedOut:
		status = http.StatusTooManyRequests
		var ae *auth.Error
		if errors.As(err, &ae) && ae.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(ae.RetryAfter/time.Second)+1))
		}
	}
	if kind == "" {
		problems.Write(w, status, "internal", "internal error")
		return
	}
	problems.Write(w, status, string(kind), "")
}
