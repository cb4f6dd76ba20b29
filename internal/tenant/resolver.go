package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/vs-ai-ds/hms-backend/internal/model"
)

// Source loads tenant rows from the shared public schema. Satisfied
// by the tenant repository.
type Source interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
}

// Resolver maps a tenant ID from an authenticated request to a
// Handle, rejecting tenants that may not serve traffic. Lookups are
// cached briefly; lifecycle changes call Invalidate to take effect
// immediately on this instance.
type Resolver struct {
	source Source
	cache  *cache.Cache
}

func NewResolver(source Source, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{
		source: source,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// Resolve returns the handle for an operational tenant. A tenant in
// any non-ACTIVE state yields an UnavailableError before any schema
// is touched.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID) (*Handle, error) {
	h, err := r.lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !h.Status.Operational() {
		return nil, &UnavailableError{TenantID: tenantID.String(), Status: h.Status}
	}
	return h, nil
}

// ResolveAny returns the handle regardless of lifecycle state. Used
// by onboarding and platform administration paths that must see
// PENDING and SUSPENDED tenants.
func (r *Resolver) ResolveAny(ctx context.Context, tenantID uuid.UUID) (*Handle, error) {
	return r.lookup(ctx, tenantID)
}

func (r *Resolver) lookup(ctx context.Context, tenantID uuid.UUID) (*Handle, error) {
	key := tenantID.String()
	if cached, ok := r.cache.Get(key); ok {
		h := cached.(Handle)
		return &h, nil
	}

	t, err := r.source.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant: %w", err)
	}

	h := Handle{
		ID:         t.ID,
		Name:       t.Name,
		SchemaName: t.SchemaName,
		Status:     t.Status,
	}
	r.cache.SetDefault(key, h)
	return &h, nil
}

// Invalidate drops the cached snapshot for a tenant.
func (r *Resolver) Invalidate(tenantID uuid.UUID) {
	r.cache.Delete(tenantID.String())
}
