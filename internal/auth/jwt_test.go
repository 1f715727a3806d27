package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"eventgate/pkg/tenants"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokenService(t *testing.T) (*TokenService, *time.Time) {
	t.Helper()
	dir := tenants.NewStaticDirectory(tenants.Tenant{
		ID: "root", Slug: "root", Secret: testSecret,
	})
	svc := NewTokenService(dir, zap.NewNop().Sugar(), 0)
	now := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return now }
	return svc, &now
}

// signedToken hand-builds a token so tests can produce shapes Issue never
// emits (bad alg, nbf, missing claims).
func signedToken(t *testing.T, secret string, header, payload map[string]any) string {
	t.Helper()
	hb, err := json.Marshal(header)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	h := base64.RawURLEncoding.EncodeToString(hb)
	p := base64.RawURLEncoding.EncodeToString(pb)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(h + "." + p))
	return h + "." + p + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func hs256Header() map[string]any {
	return map[string]any{"alg": "HS256", "typ": "JWT"}
}

func TestJWT_RoundTrip(t *testing.T) {
	svc, now := newTestTokenService(t)
	issued, err := svc.Issue(context.Background(), IssueRequest{
		Tenant:        "root",
		ExpirySeconds: 3600,
		Scope:         "events:read events:write",
		Claims:        map[string]any{"display": "Kiosk 7"},
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(issued.Header, "Bearer ") {
		t.Errorf("usage header should be a ready Authorization value, got %q", issued.Header)
	}
	if got, want := issued.ExpiresAt, now.Add(time.Hour); !got.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", got, want)
	}
	if parts := strings.Split(issued.Token, "."); len(parts) != 3 {
		t.Fatalf("token should have three segments, got %d", len(parts))
	}

	claims, err := svc.Verify(context.Background(), issued.Token, "root")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Tenant != "root" {
		t.Errorf("tenant = %q, want root", claims.Tenant)
	}
	if claims.Scope != "events:read events:write" {
		t.Errorf("scope = %q", claims.Scope)
	}
	if got := claims.Scopes(); len(got) != 2 || got[0] != "events:read" {
		t.Errorf("Scopes() = %v", got)
	}
	if claims.Extra["display"] != "Kiosk 7" {
		t.Errorf("custom claim lost: %v", claims.Extra)
	}
	if !claims.ExpiresAt.Equal(issued.ExpiresAt) {
		t.Errorf("claims.ExpiresAt = %v, want %v", claims.ExpiresAt, issued.ExpiresAt)
	}
}

func TestJWT_TamperedSignature(t *testing.T) {
	svc, _ := newTestTokenService(t)
	issued, err := svc.Issue(context.Background(), IssueRequest{Tenant: "root", ExpirySeconds: 3600})
	if err != nil {
		t.Fatal(err)
	}
	// Flip one character of the signature segment.
	tok := issued.Token
	last := tok[len(tok)-1]
	flip := byte('A')
	if last == 'A' {
		flip = 'B'
	}
	tampered := tok[:len(tok)-1] + string(flip)

	_, err = svc.Verify(context.Background(), tampered, "root")
	if KindOf(err) != KindBadSignature {
		t.Errorf("tampered token: kind = %q, want %q (err=%v)", KindOf(err), KindBadSignature, err)
	}
}

func TestJWT_AlgorithmPinning(t *testing.T) {
	svc, now := newTestTokenService(t)
	exp := now.Add(time.Hour).Unix()
	for _, alg := range []string{"none", "RS256", "HS512", ""} {
		tok := signedToken(t, testSecret, map[string]any{"alg": alg, "typ": "JWT"},
			map[string]any{"tenant": "root", "exp": exp})
		_, err := svc.Verify(context.Background(), tok, "root")
		if KindOf(err) != KindBadAlgorithm {
			t.Errorf("alg %q: kind = %q, want %q", alg, KindOf(err), KindBadAlgorithm)
		}
	}
}

func TestJWT_BadFormat(t *testing.T) {
	svc, _ := newTestTokenService(t)
	for _, raw := range []string{"", "one", "one.two", "one.two.three.four", "..", "a..c"} {
		_, err := svc.Verify(context.Background(), raw, "root")
		if KindOf(err) != KindBadTokenFormat {
			t.Errorf("%q: kind = %q, want %q", raw, KindOf(err), KindBadTokenFormat)
		}
	}
	// Valid shape but undecodable segments.
	_, err := svc.Verify(context.Background(), "!!!.???.###", "root")
	if KindOf(err) != KindBadTokenFormat {
		t.Errorf("garbage segments: kind = %q, want %q", KindOf(err), KindBadTokenFormat)
	}
}

func TestJWT_ExpiryBoundary(t *testing.T) {
	svc, now := newTestTokenService(t)
	issueTime := *now
	issued, err := svc.Issue(context.Background(), IssueRequest{Tenant: "root", ExpirySeconds: 3600})
	if err != nil {
		t.Fatal(err)
	}

	// One second before exp: valid.
	*now = issueTime.Add(3599 * time.Second)
	if _, err := svc.Verify(context.Background(), issued.Token, "root"); err != nil {
		t.Errorf("token one second before exp should verify: %v", err)
	}

	// Exactly exp: expired (inclusive boundary).
	*now = issueTime.Add(3600 * time.Second)
	_, err = svc.Verify(context.Background(), issued.Token, "root")
	if KindOf(err) != KindTokenExpired {
		t.Errorf("token at exp: kind = %q, want %q", KindOf(err), KindTokenExpired)
	}
}

func TestJWT_NotYetValid(t *testing.T) {
	svc, now := newTestTokenService(t)
	tok := signedToken(t, testSecret, hs256Header(), map[string]any{
		"tenant": "root",
		"exp":    now.Add(time.Hour).Unix(),
		"nbf":    now.Add(10 * time.Minute).Unix(),
	})
	_, err := svc.Verify(context.Background(), tok, "root")
	if KindOf(err) != KindTokenNotYetValid {
		t.Errorf("kind = %q, want %q", KindOf(err), KindTokenNotYetValid)
	}

	// Same token once nbf has passed.
	*now = now.Add(11 * time.Minute)
	if _, err := svc.Verify(context.Background(), tok, "root"); err != nil {
		t.Errorf("token past nbf should verify: %v", err)
	}
}

func TestJWT_TenantMismatch(t *testing.T) {
	svc, _ := newTestTokenService(t)
	issued, err := svc.Issue(context.Background(), IssueRequest{Tenant: "root", ExpirySeconds: 3600})
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Verify(context.Background(), issued.Token, "someone-else")
	if KindOf(err) != KindTenantMismatch {
		t.Errorf("kind = %q, want %q", KindOf(err), KindTenantMismatch)
	}
}

func TestJWT_MissingExp(t *testing.T) {
	svc, _ := newTestTokenService(t)
	tok := signedToken(t, testSecret, hs256Header(), map[string]any{"tenant": "root"})
	_, err := svc.Verify(context.Background(), tok, "root")
	if KindOf(err) != KindBadTokenFormat {
		t.Errorf("kind = %q, want %q", KindOf(err), KindBadTokenFormat)
	}
}

func TestJWT_UnknownTenantOnIssue(t *testing.T) {
	svc, _ := newTestTokenService(t)
	_, err := svc.Issue(context.Background(), IssueRequest{Tenant: "ghost"})
	if KindOf(err) != KindUnknownTenant {
		t.Errorf("kind = %q, want %q", KindOf(err), KindUnknownTenant)
	}
}

func TestJWT_MisconfiguredTenantIsNotCredentialError(t *testing.T) {
	dir := tenants.NewStaticDirectory(tenants.Tenant{ID: "bare", Secret: ""})
	svc := NewTokenService(dir, zap.NewNop().Sugar(), 0)
	_, err := svc.Issue(context.Background(), IssueRequest{Tenant: "bare"})
	if err == nil {
		t.Fatal("issuing for a secretless tenant should fail")
	}
	var ae *Error
	if errors.As(err, &ae) {
		t.Errorf("missing secret is a configuration fault, not a typed auth error: %v", err)
	}
}
