package sharing

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
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/service/audit"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

type fakeShareRepo struct {
	grants   map[uuid.UUID]*model.ShareGrant
	byToken  map[string]*model.ShareGrant
	accesses []*model.ShareAccessLog
	expired  []uuid.UUID
	revoked  []uuid.UUID
	stale    int64
}

func newFakeShareRepo() *fakeShareRepo {
	return &fakeShareRepo{
		grants:  make(map[uuid.UUID]*model.ShareGrant),
		byToken: make(map[string]*model.ShareGrant),
	}
}

func (r *fakeShareRepo) add(g *model.ShareGrant) {
	r.grants[g.ID] = g
	if g.Token != "" {
		r.byToken[g.Token] = g
	}
}

func (r *fakeShareRepo) Create(ctx context.Context, grant *model.ShareGrant) error {
	r.add(grant)
	return nil
}

func (r *fakeShareRepo) Get(ctx context.Context, id uuid.UUID) (*model.ShareGrant, error) {
	g, ok := r.grants[id]
	if !ok {
		return nil, model.ErrShareNotFound
	}
	return g, nil
}

func (r *fakeShareRepo) GetByToken(ctx context.Context, token string) (*model.ShareGrant, error) {
	g, ok := r.byToken[token]
	if !ok {
		return nil, model.ErrShareNotFound
	}
	return g, nil
}

func (r *fakeShareRepo) ListBySource(ctx context.Context, sourceTenantID uuid.UUID, filter *model.ShareFilter) ([]*model.ShareGrant, error) {
	var out []*model.ShareGrant
	for _, g := range r.grants {
		if g.SourceTenantID == sourceTenantID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *fakeShareRepo) Revoke(ctx context.Context, id, revokedBy uuid.UUID, at time.Time) (bool, error) {
	g, ok := r.grants[id]
	if !ok || g.Status != model.ShareStatusActive {
		return false, nil
	}
	g.Status = model.ShareStatusRevoked
	g.RevokedAt = &at
	g.RevokedBy = &revokedBy
	r.revoked = append(r.revoked, id)
	return true, nil
}

func (r *fakeShareRepo) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	g, ok := r.grants[id]
	if !ok || g.Status != model.ShareStatusActive {
		return false, nil
	}
	g.Status = model.ShareStatusExpired
	r.expired = append(r.expired, id)
	return true, nil
}

func (r *fakeShareRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	return r.stale, nil
}

func (r *fakeShareRepo) LogAccess(ctx context.Context, entry *model.ShareAccessLog) error {
	r.accesses = append(r.accesses, entry)
	return nil
}

func (r *fakeShareRepo) ListAccess(ctx context.Context, grantID uuid.UUID) ([]*model.ShareAccessLog, error) {
	var out []*model.ShareAccessLog
	for _, a := range r.accesses {
		if a.GrantID == grantID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeAuditRepo struct{ entries []*model.AuditLog }

func (r *fakeAuditRepo) Create(ctx context.Context, log *model.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

func (r *fakeAuditRepo) List(ctx context.Context, filter *model.AuditLogFilter) ([]*model.AuditLog, error) {
	return r.entries, nil
}

func (r *fakeAuditRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeOutbox struct{ events []*model.OutboxEvent }

func (o *fakeOutbox) Create(ctx context.Context, event *model.OutboxEvent) error {
	o.events = append(o.events, event)
	return nil
}

func (o *fakeOutbox) CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	o.events = append(o.events, event)
	return nil
}

func (o *fakeOutbox) GetPendingEventsWithLock(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (o *fakeOutbox) BeginTx(ctx context.Context) (*sqlx.Tx, error) { return nil, nil }

func (o *fakeOutbox) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	return nil
}

func (o *fakeOutbox) MoveToDeadLetter(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	return nil
}

func (o *fakeOutbox) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeTenantSource struct{ tenants map[uuid.UUID]*model.Tenant }

func (s *fakeTenantSource) Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error) {
	t, ok := s.tenants[id]
	if !ok {
		return nil, model.ErrTenantNotFound
	}
	return t, nil
}

func newTestService(shares repository.ShareRepository, source tenant.Source) *Service {
	auditor := audit.NewService(&fakeAuditRepo{}, zerolog.Nop())
	return NewService(
		tenant.NewScope(nil, zerolog.Nop(), nil),
		nil,
		shares,
		tenant.NewResolver(source, time.Minute),
		&fakeOutbox{},
		auditor,
		zerolog.Nop(),
		72*time.Hour,
	)
}

func activeGrant(token string) *model.ShareGrant {
	return &model.ShareGrant{
		Base:           model.Base{ID: uuid.New()},
		SourceTenantID: uuid.New(),
		PatientID:      uuid.New(),
		Token:          token,
		Mode:           model.ShareModeReadOnly,
		Status:         model.ShareStatusActive,
		ExpiresAt:      time.Now().Add(time.Hour),
		CreatedBy:      uuid.New(),
	}
}

func TestRedeemUnknownToken(t *testing.T) {
	svc := newTestService(newFakeShareRepo(), &fakeTenantSource{})

	_, err := svc.Redeem(context.Background(), "no-such-token", &Access{})
	assert.ErrorIs(t, err, model.ErrShareNotFound)
}

func TestRedeemRevokedGrant(t *testing.T) {
	repo := newFakeShareRepo()
	g := activeGrant("tok-revoked")
	g.Status = model.ShareStatusRevoked
	repo.add(g)

	svc := newTestService(repo, &fakeTenantSource{})

	_, err := svc.Redeem(context.Background(), "tok-revoked", &Access{IPAddress: "10.0.0.1"})
	assert.ErrorIs(t, err, model.ErrShareRevoked)

	require.Len(t, repo.accesses, 1)
	assert.Equal(t, model.ShareAccessRevoked, repo.accesses[0].Outcome)
	assert.Equal(t, "10.0.0.1", repo.accesses[0].IPAddress)
}

func TestRedeemExpiresStaleGrantOnTheSpot(t *testing.T) {
	repo := newFakeShareRepo()
	g := activeGrant("tok-stale")
	g.ExpiresAt = time.Now().Add(-time.Minute)
	repo.add(g)

	svc := newTestService(repo, &fakeTenantSource{})

	_, err := svc.Redeem(context.Background(), "tok-stale", &Access{})
	assert.ErrorIs(t, err, model.ErrShareExpired)
	assert.Contains(t, repo.expired, g.ID, "grant past expiry must be flipped to EXPIRED")

	require.Len(t, repo.accesses, 1)
	assert.Equal(t, model.ShareAccessExpired, repo.accesses[0].Outcome)

	// The second attempt hits the persisted status directly.
	_, err = svc.Redeem(context.Background(), "tok-stale", &Access{})
	assert.ErrorIs(t, err, model.ErrShareExpired)
	assert.Len(t, repo.expired, 1)
}

func TestIssueRejectsSelfShare(t *testing.T) {
	svc := newTestService(newFakeShareRepo(), &fakeTenantSource{})

	h := &tenant.Handle{ID: uuid.New(), SchemaName: "tenant_0a1b2c3d", Status: model.TenantStatusActive}
	target := h.ID

	_, err := svc.Issue(context.Background(), h, uuid.New(), &model.CreateShareRequest{
		PatientID:      uuid.New(),
		TargetTenantID: &target,
		Mode:           model.ShareModeReadOnly,
	})
	assert.ErrorIs(t, err, ErrSelfShare)
}

func TestIssueRejectsInactiveTarget(t *testing.T) {
	targetID := uuid.New()
	source := &fakeTenantSource{tenants: map[uuid.UUID]*model.Tenant{
		targetID: {
			Base:       model.Base{ID: targetID},
			SchemaName: "tenant_deadbeef",
			Status:     model.TenantStatusSuspended,
		},
	}}
	svc := newTestService(newFakeShareRepo(), source)

	h := &tenant.Handle{ID: uuid.New(), SchemaName: "tenant_0a1b2c3d", Status: model.TenantStatusActive}
	_, err := svc.Issue(context.Background(), h, uuid.New(), &model.CreateShareRequest{
		PatientID:      uuid.New(),
		TargetTenantID: &targetID,
		Mode:           model.ShareModeReadOnly,
	})
	assert.ErrorIs(t, err, ErrTargetNotActive)
}

func TestRevokeActiveGrant(t *testing.T) {
	repo := newFakeShareRepo()
	g := activeGrant("tok-revoke-me")
	repo.add(g)

	svc := newTestService(repo, &fakeTenantSource{})
	h := &tenant.Handle{ID: g.SourceTenantID, SchemaName: "tenant_0a1b2c3d", Status: model.TenantStatusActive}
	actor := uuid.New()

	got, err := svc.Revoke(context.Background(), h, actor, g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ShareStatusRevoked, got.Status)
	require.NotNil(t, got.RevokedBy)
	assert.Equal(t, actor, *got.RevokedBy)

	// Revoking twice reports the terminal state.
	_, err = svc.Revoke(context.Background(), h, actor, g.ID)
	assert.ErrorIs(t, err, model.ErrShareRevoked)
}

func TestRevokeHidesForeignGrants(t *testing.T) {
	repo := newFakeShareRepo()
	g := activeGrant("tok-foreign")
	repo.add(g)

	svc := newTestService(repo, &fakeTenantSource{})
	other := &tenant.Handle{ID: uuid.New(), SchemaName: "tenant_deadbeef", Status: model.TenantStatusActive}

	_, err := svc.Revoke(context.Background(), other, uuid.New(), g.ID)
	assert.ErrorIs(t, err, model.ErrShareNotFound)

	_, err = svc.Get(context.Background(), other, g.ID)
	assert.ErrorIs(t, err, model.ErrShareNotFound)

	_, err = svc.AccessLog(context.Background(), other, g.ID)
	assert.ErrorIs(t, err, model.ErrShareNotFound)
}

func TestAccessLogReturnsAllAttempts(t *testing.T) {
	repo := newFakeShareRepo()
	g := activeGrant("tok-logged")
	g.Status = model.ShareStatusRevoked
	repo.add(g)

	svc := newTestService(repo, &fakeTenantSource{})

	for i := 0; i < 3; i++ {
		_, err := svc.Redeem(context.Background(), "tok-logged", &Access{UserAgent: "curl"})
		require.ErrorIs(t, err, model.ErrShareRevoked)
	}

	h := &tenant.Handle{ID: g.SourceTenantID, SchemaName: "tenant_0a1b2c3d", Status: model.TenantStatusActive}
	log, err := svc.AccessLog(context.Background(), h, g.ID)
	require.NoError(t, err)
	assert.Len(t, log, 3)
	for _, entry := range log {
		assert.Equal(t, model.ShareAccessRevoked, entry.Outcome)
	}
}
