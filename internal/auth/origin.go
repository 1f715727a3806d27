package auth

import (
	"strings"
)

// EvaluateOrigin checks a request's declared origin against a tenant's
// whitelist. It returns the value to echo in Access-Control-Allow-Origin and
// whether the origin is accepted. Patterns may be exact origins, "*", or a
// single-subdomain wildcard such as "https://*.example.com".
//
// An empty origin is never accepted here: originless requests (curl and
// friends) must instead present an explicit credential, which the gate
// enforces. Silently allowing them would let non-browser clients skip the
// browser-oriented checks entirely.
func EvaluateOrigin(origin string, allowed []string) (string, bool) {
	if origin == "" {
		return "", false
	}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return "*", true
		}
		if strings.EqualFold(a, origin) {
			return a, true
		}
		if wildcardMatch(a, origin) {
			return origin, true
		}
	}
	return "", false
}

// wildcardMatch handles "scheme://*.domain" patterns. The wildcard covers
// exactly one label: https://*.example.com matches https://app.example.com
// but not https://a.b.example.com or https://example.com.
func wildcardMatch(pattern, origin string) bool {
	i := strings.Index(pattern, "*.")
	if i < 0 {
		return false
	}
	prefix, suffix := pattern[:i], pattern[i+1:] // suffix keeps the leading dot
	if !strings.HasPrefix(origin, prefix) || !strings.HasSuffix(origin, suffix) {
		return false
	}
	label := origin[len(prefix) : len(origin)-len(suffix)]
	return label != "" && !strings.Contains(label, ".")
}
