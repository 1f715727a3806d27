package auth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"eventgate/pkg/tenants"
)

// Method identifies which credential type authenticated a request.
type Method string

const (
	MethodSharedSecret Method = "shared_secret"
	MethodBearer       Method = "bearer"
	MethodAPIKey       Method = "api_key"
)

// Request carries the auth-relevant slice of an inbound request. The gate
// never sees the raw *http.Request; the HTTP layer extracts these fields
// once and the credential bag is resolved exactly once below.
type Request struct {
	Authorization string            // Authorization header, verbatim
	APIKey        string            // X-API-Key header
	Origin        string            // Origin header, empty for non-browser clients
	ClientID      string            // stable caller identifier (remote IP or device id)
	Form          map[string]string // parsed body fields
	Query         map[string]string // query parameters
}

// Identity is a successfully authenticated caller.
type Identity struct {
	Tenant tenants.Tenant
	Method Method
	Claims *Claims // non-nil only for MethodBearer
}

// credential is one presentation variant found on the request.
type credential struct {
	method Method
	value  string
}

// sharedSecretFields are the body/query parameter names a shared-secret
// credential may arrive under.
var sharedSecretFields = []string{"adminKey", "admin_key"}

// resolveCredentials inspects the request once and returns the presented
// credentials in the order the gate tries them: shared secret, bearer
// token, API key.
func resolveCredentials(r *Request) []credential {
	var creds []credential
	for _, f := range sharedSecretFields {
		if v := r.Form[f]; v != "" {
			creds = append(creds, credential{MethodSharedSecret, v})
			break
		}
		if v := r.Query[f]; v != "" {
			creds = append(creds, credential{MethodSharedSecret, v})
			break
		}
	}
	if authz := strings.TrimSpace(r.Authorization); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		if raw := strings.TrimSpace(authz[len("bearer "):]); raw != "" {
			creds = append(creds, credential{MethodBearer, raw})
		}
	}
	if r.APIKey != "" {
		creds = append(creds, credential{MethodAPIKey, r.APIKey})
	}
	return creds
}

// Gate is the single entry point for authenticating a request. Per attempt
// it moves through: received → rate-checked → credential resolution →
// authenticated or rejected. It never retries; retry policy belongs to the
// caller.
type Gate struct {
	dir     tenants.Directory
	tokens  *TokenService
	limiter *RateLimiter
	log     *zap.SugaredLogger
}

func NewGate(dir tenants.Directory, tokens *TokenService, limiter *RateLimiter, log *zap.SugaredLogger) *Gate {
	return &Gate{dir: dir, tokens: tokens, limiter: limiter, log: log}
}

// Authenticate resolves the tenant, applies throttling and lockout before
// any comparator work, enforces the origin policy, then tries each presented
// credential in order. All credential failures collapse to
// KindInvalidCredentials at this boundary; the specific cause is logged with
// the credential value redacted.
func (g *Gate) Authenticate(ctx context.Context, r *Request, tenantID string) (*Identity, error) {
	t, err := g.dir.Lookup(ctx, tenantID)
	if err != nil {
		return nil, E(KindUnknownTenant, "no such tenant")
	}

	if err := g.limiter.CheckAndIncrement(ctx, t.ID); err != nil {
		g.log.Infow("auth rejected", "tenant", t.ID, "client", r.ClientID, "cause", KindOf(err))
		return nil, err
	}
	// A locked-out caller is rejected before any credential comparison:
	// no comparator work, no timing signal.
	if remaining, locked := g.limiter.LockedOut(ctx, t.ID, r.ClientID); locked {
		g.log.Infow("auth rejected", "tenant", t.ID, "client", r.ClientID, "cause", KindLockedOut)
		return nil, &Error{Kind: KindLockedOut, Detail: "too many failed attempts", RetryAfter: remaining}
	}

	creds := resolveCredentials(r)
	if r.Origin != "" {
		if _, ok := EvaluateOrigin(r.Origin, t.AllowedOrigins); !ok {
			g.log.Infow("auth rejected", "tenant", t.ID, "client", r.ClientID, "cause", KindOriginRejected, "origin", r.Origin)
			return nil, E(KindOriginRejected, "origin not allowed for tenant")
		}
	} else if len(creds) == 0 {
		g.log.Infow("auth rejected", "tenant", t.ID, "client", r.ClientID, "cause", KindOriginRejected, "origin", "")
		return nil, E(KindOriginRejected, "originless request without explicit credentials")
	}

	if t.Secret == "" {
		return nil, fmt.Errorf("tenant %q has no secret configured", t.ID)
	}

	for _, c := range creds {
		switch c.method {
		case MethodSharedSecret, MethodAPIKey:
			if SecureCompare(c.value, t.Secret) {
				g.limiter.ClearFailures(ctx, t.ID, r.ClientID)
				return &Identity{Tenant: t, Method: c.method}, nil
			}
			g.log.Infow("credential check failed", "tenant", t.ID, "client", r.ClientID, "method", c.method, "cause", "secret mismatch")
		case MethodBearer:
			claims, err := g.tokens.Verify(ctx, c.value, t.ID)
			if err != nil {
				g.log.Infow("credential check failed", "tenant", t.ID, "client", r.ClientID, "method", c.method, "cause", KindOf(err))
				continue
			}
			if !scopesAllowed(t, claims) {
				g.log.Infow("credential check failed", "tenant", t.ID, "client", r.ClientID, "method", c.method, "cause", "scope not allowed")
				continue
			}
			g.limiter.ClearFailures(ctx, t.ID, r.ClientID)
			return &Identity{Tenant: t, Method: c.method, Claims: claims}, nil
		}
	}

	if len(creds) > 0 {
		if err := g.limiter.RecordFailure(ctx, t.ID, r.ClientID); err != nil {
			return nil, err
		}
	}
	return nil, E(KindInvalidCredentials, "authentication failed")
}

func scopesAllowed(t tenants.Tenant, claims *Claims) bool {
	for _, s := range claims.Scopes() {
		if !t.HasScope(s) {
			return false
		}
	}
	return true
}
