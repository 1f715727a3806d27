// pkg/middleware/tenant.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"eventgate/pkg/tenants"
)

type ctxTenantKey struct{}

// WithTenant resolves the request's tenant from the Host header, falling
// back to an explicit X-Tenant-ID header for non-browser clients that reach
// the service on a shared hostname. Health and metrics endpoints pass
// through without tenant context.
func WithTenant(dir tenants.Directory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			host := r.Host
			if i := strings.Index(host, ":"); i > 0 {
				host = host[:i]
			}
			t, err := dir.ResolveByHost(r.Context(), host)
			if err != nil {
				if tid := strings.TrimSpace(r.Header.Get("X-Tenant-ID")); tid != "" {
					t, err = dir.Lookup(r.Context(), tid)
				}
			}
			if err != nil {
				http.Error(w, "unknown tenant", http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), ctxTenantKey{}, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFrom returns the tenant stored by WithTenant; zero value if absent.
func TenantFrom(ctx context.Context) tenants.Tenant {
	if v := ctx.Value(ctxTenantKey{}); v != nil {
		return v.(tenants.Tenant)
	}
	return tenants.Tenant{}
}
