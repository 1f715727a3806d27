// pkg/tenants/postgres.go
package tenants

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgDirectory implements Directory backed by PostgreSQL.
type pgDirectory struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

// NewPostgresDirectory constructs a PostgreSQL-backed tenant directory.
func NewPostgresDirectory(dbPool *pgxpool.Pool, log *zap.SugaredLogger) Directory {
	return &pgDirectory{dbPool: dbPool, log: log}
}

// EnsureSchema creates required tables if they do not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id uuid PRIMARY KEY,
  slug text UNIQUE,
  secret text NOT NULL,
  allowed_scopes text[] DEFAULT '{}',
  hosts text[] DEFAULT '{}',
  allowed_origins text[] DEFAULT '{}',
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS tenants_hosts_idx ON tenants USING GIN (hosts);
`)
	return err
}

// SeedFromEnv upserts tenants from a JSON seed blob (TENANT_SEED_JSON).
// Empty seed is a no-op.
func SeedFromEnv(ctx context.Context, dbPool *pgxpool.Pool, seed string) error {
	if strings.TrimSpace(seed) == "" {
		return nil
	}
	var entries []seedEntry
	if err := json.Unmarshal([]byte(seed), &entries); err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		_, err := dbPool.Exec(ctx, `
INSERT INTO tenants (id, slug, secret, allowed_scopes, hosts, allowed_origins)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  slug=EXCLUDED.slug, secret=EXCLUDED.secret, allowed_scopes=EXCLUDED.allowed_scopes,
  hosts=EXCLUDED.hosts, allowed_origins=EXCLUDED.allowed_origins, updated_at=NOW()`,
			e.ID, e.Slug, e.Secret, e.AllowedScopes, e.Hosts, e.AllowedOrigins)
		if err != nil {
			return err
		}
	}
	return nil
}

const tenantColumns = `id, slug, secret, allowed_scopes, hosts, allowed_origins`

func (p *pgDirectory) Lookup(ctx context.Context, id string) (Tenant, error) {
	row := p.dbPool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id::text=$1 OR slug=$1 LIMIT 1`, id)
	return scanTenant(row)
}

func (p *pgDirectory) ResolveByHost(ctx context.Context, host string) (Tenant, error) {
	row := p.dbPool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE $1 = ANY(hosts) LIMIT 1`, strings.ToLower(host))
	return scanTenant(row)
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Secret, &t.AllowedScopes, &t.Hosts, &t.AllowedOrigins)
	if err == pgx.ErrNoRows {
		return Tenant{}, ErrNotFound
	}
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}
