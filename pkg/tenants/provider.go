package tenants

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no tenant matches the given id, slug or host.
var ErrNotFound = errors.New("tenant not found")

// Directory resolves tenant identifiers to their secret and policy. The
// authentication core consumes this as a black box; implementations live
// here (memory, postgres) or in the surrounding application.
type Directory interface {
	// Lookup resolves a tenant by id or slug.
	Lookup(ctx context.Context, id string) (Tenant, error)
	// ResolveByHost resolves a tenant from an incoming Host header.
	ResolveByHost(ctx context.Context, host string) (Tenant, error)
}
