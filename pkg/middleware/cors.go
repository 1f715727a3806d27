// pkg/middleware/cors.go
package middleware

import (
	"net/http"

	"eventgate/internal/auth"
)

// CORS answers preflight requests and sets allow-origin headers from the
// resolved tenant's whitelist. Runs after WithTenant. Enforcement of the
// origin policy for credentialed requests happens in the gate; this layer
// only shapes browser behavior.
func CORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				t := TenantFrom(r.Context())
				if allow, ok := auth.EvaluateOrigin(origin, t.AllowedOrigins); ok {
					w.Header().Set("Access-Control-Allow-Origin", allow)
					w.Header().Set("Vary", "Origin")
					w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Tenant-ID, X-API-Key, "+CSRFHeader)
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
