package tenants

// Tenant represents a logically isolated customer / brand space. Requests
// are authenticated against the tenant's own secret and scope policy.
type Tenant struct {
	ID             string   // uuid
	Slug           string   // short name (acme)
	Secret         string   // shared secret; resolved at lookup time, never logged
	AllowedScopes  []string // scopes a credential for this tenant may carry
	Hosts          []string // hostnames that resolve to this tenant
	AllowedOrigins []string // browser origins accepted for cross-site calls
}

// HasScope reports whether the tenant's policy allows the given scope.
// An empty AllowedScopes list means no scope restriction.
func (t Tenant) HasScope(scope string) bool {
	if len(t.AllowedScopes) == 0 {
		return true
	}
	for _, s := range t.AllowedScopes {
		if s == scope {
			return true
		}
	}
	return false
}
