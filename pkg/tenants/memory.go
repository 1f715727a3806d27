// pkg/tenants/memory.go
package tenants

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type memDirectory struct {
	log    *zap.SugaredLogger
	byID   map[string]Tenant
	byHost map[string]Tenant
}

type seedEntry struct {
	ID             string   `json:"id" yaml:"id"`
	Slug           string   `json:"slug" yaml:"slug"`
	Secret         string   `json:"secret" yaml:"secret"`
	AllowedScopes  []string `json:"allowedScopes" yaml:"allowedScopes"`
	Hosts          []string `json:"hosts" yaml:"hosts"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
}

// NewMemoryDirectory builds an in-memory directory from TENANT_SEED_JSON or,
// if seedFile is non-empty, from a YAML tenant list. Intended for dev and
// tests; production deployments use the postgres directory.
func NewMemoryDirectory(log *zap.SugaredLogger, seedFile string) Directory {
	d := &memDirectory{log: log, byID: map[string]Tenant{}, byHost: map[string]Tenant{}}

	var entries []seedEntry
	if seedFile != "" {
		b, err := os.ReadFile(seedFile)
		if err != nil {
			log.Warnw("tenant seed file unreadable", "file", seedFile, "err", err)
		} else if err := yaml.Unmarshal(b, &entries); err != nil {
			log.Warnw("tenant seed file malformed", "file", seedFile, "err", err)
		}
	} else if seed := os.Getenv("TENANT_SEED_JSON"); seed != "" {
		if err := json.Unmarshal([]byte(seed), &entries); err != nil {
			log.Warnw("TENANT_SEED_JSON malformed", "err", err)
		}
	}

	for _, e := range entries {
		t := Tenant{
			ID: e.ID, Slug: e.Slug, Secret: e.Secret,
			AllowedScopes: e.AllowedScopes, Hosts: e.Hosts, AllowedOrigins: e.AllowedOrigins,
		}
		d.add(t)
	}
	if len(d.byID) == 0 {
		log.Warnw("no tenants seeded; all lookups will fail")
	}
	return d
}

// NewStaticDirectory wraps a fixed tenant list. Used by tests.
func NewStaticDirectory(ts ...Tenant) Directory {
	d := &memDirectory{log: zap.NewNop().Sugar(), byID: map[string]Tenant{}, byHost: map[string]Tenant{}}
	for _, t := range ts {
		d.add(t)
	}
	return d
}

func (d *memDirectory) add(t Tenant) {
	d.byID[t.ID] = t
	if t.Slug != "" {
		d.byID[t.Slug] = t
	}
	for _, h := range t.Hosts {
		d.byHost[strings.ToLower(h)] = t
	}
}

func (d *memDirectory) Lookup(ctx context.Context, id string) (Tenant, error) {
	if t, ok := d.byID[id]; ok {
		return t, nil
	}
	return Tenant{}, ErrNotFound
}

func (d *memDirectory) ResolveByHost(ctx context.Context, host string) (Tenant, error) {
	if t, ok := d.byHost[strings.ToLower(host)]; ok {
		return t, nil
	}
	return Tenant{}, ErrNotFound
}
