package authz

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

type fakeRoleSource struct {
	roles []string
	codes []string
	err   error
	calls int
}

func (s *fakeRoleSource) EffectivePermissions(ctx context.Context, h *tenant.Handle, userID uuid.UUID) ([]string, []string, error) {
	s.calls++
	return s.roles, s.codes, s.err
}

func testContext(roles []string, codes ...string) *tenant.Context {
	perms := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		perms[c] = struct{}{}
	}
	return &tenant.Context{
		Tenant:      tenant.Handle{ID: uuid.New(), Status: model.TenantStatusActive},
		UserID:      uuid.New(),
		Roles:       roles,
		Permissions: perms,
	}
}

func TestAuthorizeDeniesMissingPermission(t *testing.T) {
	ev := NewEvaluator(&fakeRoleSource{}, time.Minute, nil)
	tc := testContext([]string{model.RoleReceptionist}, PermAppointmentsCreate)

	d := ev.Authorize(tc, PermPrescriptionsIssue, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRoleInsufficient, d.Reason)
}

func TestAuthorizeAllowsGrantedPermission(t *testing.T) {
	ev := NewEvaluator(&fakeRoleSource{}, time.Minute, nil)
	tc := testContext([]string{model.RoleReceptionist}, PermAppointmentsCreate)

	d := ev.Authorize(tc, PermAppointmentsCreate, nil)
	assert.True(t, d.Allowed)
}

func TestAuthorizeIsDeterministic(t *testing.T) {
	ev := NewEvaluator(&fakeRoleSource{}, time.Minute, nil)
	tc := testContext([]string{model.RoleDoctor}, PermPatientsView)
	other := uuid.New()
	attrs := &Attributes{OwnerID: &other}

	first := ev.Authorize(tc, PermPatientsView, attrs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ev.Authorize(tc, PermPatientsView, attrs))
	}
}

func TestAttributeNarrowingOwner(t *testing.T) {
	ev := NewEvaluator(&fakeRoleSource{}, time.Minute, nil)
	tc := testContext([]string{model.RoleDoctor}, PermAppointmentsView)

	other := uuid.New()
	d := ev.Authorize(tc, PermAppointmentsView, &Attributes{OwnerID: &other})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAttributeMismatch, d.Reason)

	own := tc.UserID
	d = ev.Authorize(tc, PermAppointmentsView, &Attributes{OwnerID: &own})
	assert.True(t, d.Allowed)
}

func TestAttributeNarrowingDepartment(t *testing.T) {
	ev := NewEvaluator(&fakeRoleSource{}, time.Minute, nil)

	dept := uuid.New()
	otherDept := uuid.New()

	tc := testContext([]string{model.RoleNurse}, PermPatientsView)
	tc.DepartmentID = &dept

	d := ev.Authorize(tc, PermPatientsView, &Attributes{DepartmentID: &otherDept})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAttributeMismatch, d.Reason)

	d = ev.Authorize(tc, PermPatientsView, &Attributes{DepartmentID: &dept})
	assert.True(t, d.Allowed)

	// A nurse with no department assignment sees nothing scoped.
	tc.DepartmentID = nil
	d = ev.Authorize(tc, PermPatientsView, &Attributes{DepartmentID: &dept})
	assert.False(t, d.Allowed)
}

func TestAdminRolesBypassAttributes(t *testing.T) {
	ev := NewEvaluator(&fakeRoleSource{}, time.Minute, nil)
	other := uuid.New()
	otherDept := uuid.New()
	attrs := &Attributes{OwnerID: &other, DepartmentID: &otherDept}

	for _, role := range []string{model.RoleSuperAdmin, model.RoleHospitalAdmin, model.RoleReceptionist} {
		tc := testContext([]string{role}, PermPatientsView)
		d := ev.Authorize(tc, PermPatientsView, attrs)
		assert.True(t, d.Allowed, "role %s should not be attribute-narrowed", role)
	}
}

func TestGrantReadOnlyRejectsWrites(t *testing.T) {
	ev := NewEvaluator(&fakeRoleSource{}, time.Minute, nil)

	patientID := uuid.New()
	tc := testContext(nil)
	tc.Grant = &tenant.GrantScope{
		GrantID:   uuid.New(),
		PatientID: patientID,
		Mode:      model.ShareModeReadOnly,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	d := ev.Authorize(tc, PermPatientsUpdate, &Attributes{PatientID: &patientID})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonGrantScopeExceeded, d.Reason)

	d = ev.Authorize(tc, PermPatientsView, &Attributes{PatientID: &patientID})
	assert.True(t, d.Allowed)
}

func TestGrantCoversSinglePatient(t *testing.T) {
	ev := NewEvaluator(&fakeRoleSource{}, time.Minute, nil)

	patientID := uuid.New()
	tc := testContext(nil)
	tc.Grant = &tenant.GrantScope{
		GrantID:   uuid.New(),
		PatientID: patientID,
		Mode:      model.ShareModeReadOnly,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	other := uuid.New()
	d := ev.Authorize(tc, PermPatientsView, &Attributes{PatientID: &other})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonGrantScopeExceeded, d.Reason)

	// No patient attribute at all is an attempt to widen the scope.
	d = ev.Authorize(tc, PermPatientsView, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonGrantScopeExceeded, d.Reason)
}

func TestGrantExpiredBetweenChecks(t *testing.T) {
	ev := NewEvaluator(&fakeRoleSource{}, time.Minute, nil)

	patientID := uuid.New()
	tc := testContext(nil)
	tc.Grant = &tenant.GrantScope{
		GrantID:   uuid.New(),
		PatientID: patientID,
		Mode:      model.ShareModeReadOnly,
		ExpiresAt: time.Now().Add(time.Minute),
	}

	d := ev.Authorize(tc, PermPatientsView, &Attributes{PatientID: &patientID})
	require.True(t, d.Allowed)

	// Simulate the clock passing the expiry between two requests.
	ev.now = func() time.Time { return tc.Grant.ExpiresAt.Add(time.Second) }
	d = ev.Authorize(tc, PermPatientsView, &Attributes{PatientID: &patientID})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonGrantExpired, d.Reason)
}

func TestGrantIgnoresTenantRoles(t *testing.T) {
	ev := NewEvaluator(&fakeRoleSource{}, time.Minute, nil)

	patientID := uuid.New()
	tc := testContext([]string{model.RoleHospitalAdmin}, AllCodes()...)
	tc.Grant = &tenant.GrantScope{
		GrantID:   uuid.New(),
		PatientID: patientID,
		Mode:      model.ShareModeReadOnly,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	// Even with every role permission, the grant caps the request.
	d := ev.Authorize(tc, PermPatientsUpdate, &Attributes{PatientID: &patientID})
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonGrantScopeExceeded, d.Reason)
}

func TestEffectiveSetCachesAndInvalidates(t *testing.T) {
	source := &fakeRoleSource{
		roles: []string{model.RoleDoctor},
		codes: []string{PermPatientsView, PermAppointmentsView},
	}
	ev := NewEvaluator(source, time.Minute, nil)

	h := &tenant.Handle{ID: uuid.New(), Status: model.TenantStatusActive}
	userID := uuid.New()

	roles, codes, err := ev.EffectiveSet(context.Background(), h, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{model.RoleDoctor}, roles)
	assert.Contains(t, codes, PermPatientsView)
	assert.Equal(t, 1, source.calls)

	_, _, err = ev.EffectiveSet(context.Background(), h, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "second lookup must come from cache")

	ev.Invalidate(h.ID, userID)
	_, _, err = ev.EffectiveSet(context.Background(), h, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls, "invalidation must force a reload")
}

func TestInvalidateTenantDropsAllUsers(t *testing.T) {
	source := &fakeRoleSource{roles: []string{model.RoleNurse}, codes: []string{PermPatientsView}}
	ev := NewEvaluator(source, time.Minute, nil)

	h := &tenant.Handle{ID: uuid.New(), Status: model.TenantStatusActive}
	userA := uuid.New()
	userB := uuid.New()

	_, _, err := ev.EffectiveSet(context.Background(), h, userA)
	require.NoError(t, err)
	_, _, err = ev.EffectiveSet(context.Background(), h, userB)
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)

	ev.InvalidateTenant(h.ID)

	_, _, err = ev.EffectiveSet(context.Background(), h, userA)
	require.NoError(t, err)
	_, _, err = ev.EffectiveSet(context.Background(), h, userB)
	require.NoError(t, err)
	assert.Equal(t, 4, source.calls)
}

func TestCatalogueCodesAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for _, d := range Catalogue() {
		_, dup := seen[d.Code]
		assert.False(t, dup, "duplicate permission code %s", d.Code)
		seen[d.Code] = struct{}{}
		assert.NotEmpty(t, d.Description)
	}
}
