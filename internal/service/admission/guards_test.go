package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
)

type fakeAdmissions struct {
	repository.AdmissionRepository
	adm *model.Admission
}

func (f *fakeAdmissions) Get(ctx context.Context, id uuid.UUID) (*model.Admission, error) {
	if f.adm == nil || f.adm.ID != id {
		return nil, model.ErrAdmissionNotFound
	}
	return f.adm, nil
}

func dischargeTable(adm *model.Admission) *workflow.Table {
	return Table(func(q repository.Querier) *repository.TenantStores {
		return &repository.TenantStores{Admissions: &fakeAdmissions{adm: adm}}
	})
}

func runDischargeGuards(t *workflow.Table, req *workflow.Request) error {
	for _, g := range t.Guards(workflow.StatusAdmitted, workflow.StatusDischarged) {
		if err := g(context.Background(), nil, req); err != nil {
			return err
		}
	}
	return nil
}

func admittedAt(at time.Time) *model.Admission {
	return &model.Admission{
		Base:       model.Base{ID: uuid.New()},
		PatientID:  uuid.New(),
		Status:     model.AdmissionStatusActive,
		AdmittedAt: at,
	}
}

func dischargeReq(adm *model.Admission, now time.Time, fields map[string]interface{}) *workflow.Request {
	return &workflow.Request{
		Kind:     workflow.KindAdmission,
		EntityID: adm.ID,
		From:     workflow.StatusAdmitted,
		To:       workflow.StatusDischarged,
		Now:      now,
		Fields:   fields,
	}
}

func TestDischargeRequiresSummary(t *testing.T) {
	admitted := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	adm := admittedAt(admitted)
	table := dischargeTable(adm)
	now := admitted.Add(48 * time.Hour)

	for _, summary := range []interface{}{nil, "", "   \t\n"} {
		fields := map[string]interface{}{"discharged_at": now.Add(-time.Hour)}
		if summary != nil {
			fields["discharge_summary"] = summary
		}
		err := runDischargeGuards(table, dischargeReq(adm, now, fields))
		var gv *workflow.GuardViolation
		require.ErrorAs(t, err, &gv)
		assert.Equal(t, workflow.ViolationMissingSummary, gv.Kind)
	}
}

func TestDischargeTimeWindow(t *testing.T) {
	admitted := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	adm := admittedAt(admitted)
	table := dischargeTable(adm)
	now := admitted.Add(48 * time.Hour)

	req := func(at time.Time) *workflow.Request {
		return dischargeReq(adm, now, map[string]interface{}{
			"discharge_summary": "recovered, follow-up in two weeks",
			"discharged_at":     at,
		})
	}

	// Before the admission.
	err := runDischargeGuards(table, req(admitted.Add(-time.Hour)))
	var gv *workflow.GuardViolation
	require.ErrorAs(t, err, &gv)
	assert.Equal(t, workflow.ViolationDischargeTime, gv.Kind)

	// In the future.
	err = runDischargeGuards(table, req(now.Add(time.Hour)))
	require.ErrorAs(t, err, &gv)
	assert.Equal(t, workflow.ViolationDischargeTime, gv.Kind)

	// The boundaries themselves are fine.
	assert.NoError(t, runDischargeGuards(table, req(admitted)))
	assert.NoError(t, runDischargeGuards(table, req(now)))
}

func TestDischargeMissingTimeIsCallerBug(t *testing.T) {
	adm := admittedAt(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	table := dischargeTable(adm)

	req := dischargeReq(adm, adm.AdmittedAt.Add(time.Hour), map[string]interface{}{
		"discharge_summary": "recovered",
	})
	err := runDischargeGuards(table, req)
	require.Error(t, err)
	var gv *workflow.GuardViolation
	assert.False(t, errors.As(err, &gv))
}
