package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"

	"eventgate/pkg/tenants"
)

// Algorithm is the single supported signing algorithm. There is no
// negotiation: tokens declaring anything else (including "none") are
// rejected outright.
const Algorithm = "HS256"

// DefaultTokenTTL applies when the caller does not supply an expiry.
const DefaultTokenTTL = time.Hour

// Claims are the verified contents of a bearer token. Extra holds custom
// claims beyond the registered set.
type Claims struct {
	Tenant    string
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	NotBefore time.Time // zero when absent
	Extra     map[string]any
}

// Scopes splits the space-delimited scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// IssueRequest describes a token to mint.
type IssueRequest struct {
	Tenant        string
	ExpirySeconds int // 0 means DefaultTokenTTL
	Scope         string
	Claims        map[string]any
}

// IssuedToken is the minted token plus its issuance metadata. Header is the
// ready-to-use Authorization header value.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Header    string    `json:"usageHeader"`
}

// TokenService issues and verifies tenant-scoped HMAC-signed bearer tokens.
// There is no revocation list: a minted token stays valid until exp.
type TokenService struct {
	dir        tenants.Directory
	log        *zap.SugaredLogger
	defaultTTL time.Duration
	now        func() time.Time
}

func NewTokenService(dir tenants.Directory, log *zap.SugaredLogger, defaultTTL time.Duration) *TokenService {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTokenTTL
	}
	return &TokenService{dir: dir, log: log, defaultTTL: defaultTTL, now: time.Now}
}

// reserved claims are set from IssueRequest fields, never from the custom
// claim bag.
var reservedClaims = map[string]struct{}{
	"tenant": {}, "scope": {}, "iat": {}, "exp": {}, "nbf": {},
}

// Issue mints a signed token for the tenant. The secret comes from the
// directory at issuance time; it is never embedded or cached here.
func (s *TokenService) Issue(ctx context.Context, req IssueRequest) (IssuedToken, error) {
	t, err := s.dir.Lookup(ctx, req.Tenant)
	if err != nil {
		return IssuedToken{}, E(KindUnknownTenant, "no such tenant")
	}
	if t.Secret == "" {
		return IssuedToken{}, fmt.Errorf("tenant %q has no secret configured", t.ID)
	}

	now := s.now().Truncate(time.Second)
	ttl := s.defaultTTL
	if req.ExpirySeconds > 0 {
		ttl = time.Duration(req.ExpirySeconds) * time.Second
	}
	exp := now.Add(ttl)

	b := jwt.NewBuilder().
		IssuedAt(now).
		Expiration(exp).
		Claim("tenant", t.ID)
	if req.Scope != "" {
		b = b.Claim("scope", req.Scope)
	}
	for k, v := range req.Claims {
		if _, ok := reservedClaims[k]; ok {
			continue
		}
		b = b.Claim(k, v)
	}
	tok, err := b.Build()
	if err != nil {
		return IssuedToken{}, fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(t.Secret)))
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return IssuedToken{
		Token:     string(signed),
		ExpiresAt: exp,
		Header:    "Bearer " + string(signed),
	}, nil
}

// Verify checks raw against tenantID and returns its claims. Checks run in a
// fixed order: segment format, algorithm pin, tenant match (before the secret
// fetch, so lookups cannot be timed against unknown tenants), expiry,
// signature via SecureCompare, then nbf. The payload is untrusted until the
// signature check passes; nothing beyond tenant/exp/nbf is read before then.
func (s *TokenService) Verify(ctx context.Context, raw, tenantID string) (*Claims, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, E(KindBadTokenFormat, "token must have three segments")
	}

	headBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, E(KindBadTokenFormat, "header is not base64url")
	}
	var head struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headBytes, &head); err != nil {
		return nil, E(KindBadTokenFormat, "header is not JSON")
	}
	if head.Alg != Algorithm {
		return nil, E(KindBadAlgorithm, "unsupported algorithm")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, E(KindBadTokenFormat, "payload is not base64url")
	}
	var body map[string]any
	if err := json.Unmarshal(payloadBytes, &body); err != nil {
		return nil, E(KindBadTokenFormat, "payload is not JSON")
	}

	claimTenant, _ := body["tenant"].(string)
	if claimTenant != tenantID {
		return nil, E(KindTenantMismatch, "token is for a different tenant")
	}

	exp, ok := numericClaim(body, "exp")
	if !ok {
		return nil, E(KindBadTokenFormat, "missing exp claim")
	}
	now := s.now()
	// exp is an inclusive boundary: a token expiring exactly now is expired.
	if !now.Before(time.Unix(exp, 0)) {
		return nil, E(KindTokenExpired, "token has expired")
	}

	t, err := s.dir.Lookup(ctx, tenantID)
	if err != nil {
		return nil, E(KindUnknownTenant, "no such tenant")
	}
	if t.Secret == "" {
		return nil, fmt.Errorf("tenant %q has no secret configured", t.ID)
	}

	mac := hmac.New(sha256.New, []byte(t.Secret))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if !SecureCompare(parts[2], want) {
		return nil, E(KindBadSignature, "signature mismatch")
	}

	if nbf, ok := numericClaim(body, "nbf"); ok && now.Before(time.Unix(nbf, 0)) {
		return nil, E(KindTokenNotYetValid, "token not yet valid")
	}

	claims := &Claims{
		Tenant:    claimTenant,
		ExpiresAt: time.Unix(exp, 0),
		Extra:     map[string]any{},
	}
	if scope, ok := body["scope"].(string); ok {
		claims.Scope = scope
	}
	if iat, ok := numericClaim(body, "iat"); ok {
		claims.IssuedAt = time.Unix(iat, 0)
	}
	if nbf, ok := numericClaim(body, "nbf"); ok {
		claims.NotBefore = time.Unix(nbf, 0)
	}
	for k, v := range body {
		if _, ok := reservedClaims[k]; ok {
			continue
		}
		claims.Extra[k] = v
	}
	return claims, nil
}

// numericClaim reads an integer timestamp claim, tolerating the float64 and
// json.Number shapes encoding/json produces.
func numericClaim(body map[string]any, key string) (int64, bool) {
	switch v := body[key].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
