package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/model"
)

// Handle identifies a resolved tenant and the schema its clinical
// data lives in. SchemaName is assigned at provisioning and never
// changes afterwards.
type Handle struct {
	ID         uuid.UUID
	Name       string
	SchemaName string
	Status     model.TenantStatus
}

// GrantScope narrows a request to a single shared patient record.
// Present only on requests authenticated by a share token.
type GrantScope struct {
	GrantID   uuid.UUID
	PatientID uuid.UUID
	Mode      model.ShareMode
	ExpiresAt time.Time
}

// Context carries everything the authorization layer needs about the
// current request: the resolved tenant, the acting user and their
// effective permission codes. It is immutable once built.
type Context struct {
	Tenant       Handle
	UserID       uuid.UUID
	DepartmentID *uuid.UUID
	Roles        []string
	Permissions  map[string]struct{}
	Grant        *GrantScope
}

// Has reports whether the effective set contains the permission code.
func (c *Context) Has(code string) bool {
	_, ok := c.Permissions[code]
	return ok
}

// HasRole reports whether the user holds the named role.
func (c *Context) HasRole(name string) bool {
	for _, r := range c.Roles {
		if r == name {
			return true
		}
	}
	return false
}

type ctxKey int

const (
	contextKey ctxKey = iota
	scopeMarkerKey
)

// NewContext returns a copy of ctx carrying the tenant context.
func NewContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey, tc)
}

// FromContext extracts the tenant context, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(contextKey).(*Context)
	return tc, ok
}

func markScoped(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, scopeMarkerKey, tenantID)
}

func scopedTenant(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(scopeMarkerKey).(uuid.UUID)
	return id, ok
}
