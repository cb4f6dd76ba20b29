package patient

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/service/audit"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

// mrnAttempts bounds retries when a generated record number collides.
const mrnAttempts = 5

// Service manages patient demographics. Clinical history hangs off the
// patient through appointments, prescriptions and admissions, so rows
// are deactivated rather than deleted.
type Service struct {
	scope      *tenant.Scope
	stores     repository.StoreFactory
	tenantRepo repository.TenantRepository
	auditor    *audit.Service
}

func NewService(
	scope *tenant.Scope,
	stores repository.StoreFactory,
	tenantRepo repository.TenantRepository,
	auditor *audit.Service,
) *Service {
	return &Service{
		scope:      scope,
		stores:     stores,
		tenantRepo: tenantRepo,
		auditor:    auditor,
	}
}

// Create registers a patient, enforcing the tenant's patient ceiling.
// The medical record number is allocated here; the unique constraint
// on mrn arbitrates concurrent allocations.
func (s *Service) Create(ctx context.Context, h *tenant.Handle, actorID uuid.UUID, req *model.CreatePatientRequest) (*model.Patient, error) {
	t, err := s.tenantRepo.Get(ctx, h.ID)
	if err != nil {
		return nil, err
	}

	p := &model.Patient{
		Base:         model.Base{ID: uuid.New()},
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		DateOfBirth:  req.DateOfBirth,
		Gender:       req.Gender,
		Phone:        req.Phone,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Address:      req.Address,
		BloodGroup:   req.BloodGroup,
		Allergies:    req.Allergies,
		DepartmentID: req.DepartmentID,
		Status:       string(model.PatientStatusActive),
	}

	err = s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		st := s.stores(conn)

		active, err := st.Patients.CountActive(ctx)
		if err != nil {
			return err
		}
		if active >= t.MaxPatients {
			return model.ErrTenantLimitReached
		}
		if req.DepartmentID != nil {
			if _, err := st.Departments.Get(ctx, *req.DepartmentID); err != nil {
				return err
			}
		}

		for attempt := 0; attempt < mrnAttempts; attempt++ {
			p.MRN = newMRN()
			err = st.Patients.Create(ctx, p)
			if err == nil {
				return nil
			}
			if !errors.Is(err, model.ErrMRNTaken) {
				return err
			}
		}
		return fmt.Errorf("failed to allocate mrn after %d attempts: %w", mrnAttempts, err)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionCreate, model.AuditEntityPatient, p.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"mrn": p.MRN},
	})
	return p, nil
}

func (s *Service) Get(ctx context.Context, h *tenant.Handle, id uuid.UUID) (*model.Patient, error) {
	var p *model.Patient
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		p, err = s.stores(conn).Patients.Get(ctx, id)
		return err
	})
	return p, err
}

func (s *Service) GetByMRN(ctx context.Context, h *tenant.Handle, mrn string) (*model.Patient, error) {
	var p *model.Patient
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		p, err = s.stores(conn).Patients.GetByMRN(ctx, strings.ToUpper(strings.TrimSpace(mrn)))
		return err
	})
	return p, err
}

// Update changes demographics. The MRN is immutable once allocated.
func (s *Service) Update(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error) {
	var p *model.Patient
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		st := s.stores(conn)
		var err error
		p, err = st.Patients.Get(ctx, id)
		if err != nil {
			return err
		}

		if req.DepartmentID != nil {
			if _, err := st.Departments.Get(ctx, *req.DepartmentID); err != nil {
				return err
			}
			p.DepartmentID = req.DepartmentID
		}
		if req.FirstName != nil {
			p.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			p.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.DateOfBirth != nil {
			p.DateOfBirth = req.DateOfBirth
		}
		if req.Gender != nil {
			p.Gender = *req.Gender
		}
		if req.Phone != nil {
			p.Phone = *req.Phone
		}
		if req.Email != nil {
			p.Email = strings.ToLower(strings.TrimSpace(*req.Email))
		}
		if req.Address != nil {
			p.Address = *req.Address
		}
		if req.BloodGroup != nil {
			p.BloodGroup = *req.BloodGroup
		}
		if req.Allergies != nil {
			p.Allergies = *req.Allergies
		}
		if req.Status != nil {
			p.Status = *req.Status
		}
		return st.Patients.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, model.AuditEntityPatient, id, &audit.LogOptions{
		Changes: req,
	})
	return p, nil
}

func (s *Service) List(ctx context.Context, h *tenant.Handle, filter *model.PatientFilter) ([]*model.Patient, error) {
	var out []*model.Patient
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		out, err = s.stores(conn).Patients.List(ctx, filter)
		return err
	})
	return out, err
}

// Summary returns the reduced projection also served to cross-tenant
// share redemptions.
func (s *Service) Summary(ctx context.Context, h *tenant.Handle, id uuid.UUID) (*model.PatientSummary, error) {
	var sum *model.PatientSummary
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		sum, err = s.stores(conn).Patients.Summary(ctx, id)
		return err
	})
	return sum, err
}

// newMRN produces a record number like P-3F82A1C4. Random rather than
// sequential so allocation needs no counter row.
func newMRN() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return "P-" + strings.ToUpper(hex.EncodeToString(b[:]))
}
