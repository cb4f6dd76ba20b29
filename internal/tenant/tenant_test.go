package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vs-ai-ds/hms-backend/internal/model"
)

type fakeSource struct {
	tenants map[uuid.UUID]*model.Tenant
	calls   int
}

func (s *fakeSource) Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	s.calls++
	t, ok := s.tenants[id]
	if !ok {
		return nil, model.ErrTenantNotFound
	}
	return t, nil
}

func seedTenant(status model.TenantStatus) (*fakeSource, uuid.UUID) {
	id := uuid.New()
	return &fakeSource{tenants: map[uuid.UUID]*model.Tenant{
		id: {
			Base:       model.Base{ID: id},
			Name:       "General Hospital",
			SchemaName: "tenant_0a1b2c3d",
			Status:     status,
		},
	}}, id
}

func TestResolveOperationalTenant(t *testing.T) {
	source, id := seedTenant(model.TenantStatusActive)
	r := NewResolver(source, time.Minute)

	h, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, h.ID)
	assert.Equal(t, "tenant_0a1b2c3d", h.SchemaName)
}

func TestResolveSuspendedTenantBeforeSchemaBind(t *testing.T) {
	source, id := seedTenant(model.TenantStatusSuspended)
	r := NewResolver(source, time.Minute)

	_, err := r.Resolve(context.Background(), id)
	ue, ok := IsUnavailable(err)
	require.True(t, ok)
	assert.Equal(t, model.TenantStatusSuspended, ue.Status)

	// The platform path still sees the tenant.
	h, err := r.ResolveAny(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusSuspended, h.Status)
}

func TestResolveUnknownTenant(t *testing.T) {
	source := &fakeSource{tenants: map[uuid.UUID]*model.Tenant{}}
	r := NewResolver(source, time.Minute)

	_, err := r.Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, model.ErrTenantNotFound)
}

func TestResolverCachesUntilInvalidated(t *testing.T) {
	source, id := seedTenant(model.TenantStatusActive)
	r := NewResolver(source, time.Minute)

	_, err := r.Resolve(context.Background(), id)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	// A lifecycle change invalidates; the next resolve sees it.
	source.tenants[id].Status = model.TenantStatusSuspended
	r.Invalidate(id)

	_, err = r.Resolve(context.Background(), id)
	_, ok := IsUnavailable(err)
	assert.True(t, ok)
	assert.Equal(t, 2, source.calls)
}

func TestScopeRejectsInvalidSchemaName(t *testing.T) {
	s := NewScope(nil, zerolog.Nop(), nil)

	for _, name := range []string{
		"",
		"public",
		"tenant_XYZ",
		"tenant_0a1b2c3",
		"tenant_0a1b2c3d9",
		`tenant_0a1b2c3d"; DROP SCHEMA public`,
	} {
		h := &Handle{ID: uuid.New(), SchemaName: name, Status: model.TenantStatusActive}
		err := s.Run(context.Background(), h, func(ctx context.Context, conn *sqlx.Conn) error {
			t.Fatalf("fn must not run for schema name %q", name)
			return nil
		})
		assert.ErrorIs(t, err, ErrInvalidSchemaName, "schema name %q", name)
	}
}

func TestScopeRefusesNonOperationalTenant(t *testing.T) {
	s := NewScope(nil, zerolog.Nop(), nil)
	h := &Handle{ID: uuid.New(), SchemaName: "tenant_0a1b2c3d", Status: model.TenantStatusSuspended}

	err := s.Run(context.Background(), h, func(ctx context.Context, conn *sqlx.Conn) error {
		t.Fatal("fn must not run for a suspended tenant")
		return nil
	})
	_, ok := IsUnavailable(err)
	assert.True(t, ok)
}

func TestScopeRejectsNestedRun(t *testing.T) {
	s := NewScope(nil, zerolog.Nop(), nil)
	h := &Handle{ID: uuid.New(), SchemaName: "tenant_0a1b2c3d", Status: model.TenantStatusActive}

	ctx := markScoped(context.Background(), h.ID)
	err := s.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrNestedScope)
}

func TestValidSchemaName(t *testing.T) {
	assert.True(t, ValidSchemaName("tenant_0a1b2c3d"))
	assert.True(t, ValidSchemaName("tenant_deadbeef"))
	assert.False(t, ValidSchemaName("tenant_DEADBEEF"))
	assert.False(t, ValidSchemaName("tenant_12345"))
	assert.False(t, ValidSchemaName("other_0a1b2c3d"))
	assert.False(t, ValidSchemaName("tenant_0a1b2c3d_extra"))
}

func TestContextRoundTrip(t *testing.T) {
	tc := &Context{
		Tenant:      Handle{ID: uuid.New()},
		UserID:      uuid.New(),
		Roles:       []string{model.RoleDoctor},
		Permissions: map[string]struct{}{"patients:view": {}},
	}

	ctx := NewContext(context.Background(), tc)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, tc, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)

	assert.True(t, tc.Has("patients:view"))
	assert.False(t, tc.Has("patients:update"))
	assert.True(t, tc.HasRole(model.RoleDoctor))
	assert.False(t, tc.HasRole(model.RoleNurse))
}
