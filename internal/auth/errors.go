package auth

import (
	"errors"
	"time"
)

// Kind classifies an authentication failure. The HTTP boundary maps kinds to
// statuses; the gate collapses all credential failures to
// KindInvalidCredentials before returning so callers cannot probe which
// method almost succeeded.
type Kind string

const (
	KindUnknownTenant      Kind = "unknown_tenant"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindRateLimited        Kind = "rate_limited"
	KindLockedOut          Kind = "locked_out"
	KindBadTokenFormat     Kind = "bad_token_format"
	KindBadAlgorithm       Kind = "bad_algorithm"
	KindTokenExpired       Kind = "token_expired"
	KindTokenNotYetValid   Kind = "token_not_yet_valid"
	KindBadSignature       Kind = "bad_signature"
	KindTenantMismatch     Kind = "tenant_mismatch"
	KindCSRFInvalid        Kind = "csrf_invalid_or_consumed"
	KindOriginRejected     Kind = "origin_rejected"
	KindLockUnavailable    Kind = "lock_unavailable"
)

// Error is a typed authentication failure. RetryAfter is set for throttling
// kinds so the boundary can emit a Retry-After header.
type Error struct {
	Kind       Kind
	Detail     string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// Is matches two auth errors by kind, so errors.Is(err, E(KindExpired, ""))
// works regardless of detail text.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// E builds a typed auth error.
func E(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// KindOf extracts the kind from an error chain, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
