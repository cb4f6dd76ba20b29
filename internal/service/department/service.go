package department

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/service/audit"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

// Service manages the tenant's departments. Departments anchor staff
// assignment and the department-scoped access checks.
type Service struct {
	scope   *tenant.Scope
	stores  repository.StoreFactory
	auditor *audit.Service
}

func NewService(scope *tenant.Scope, stores repository.StoreFactory, auditor *audit.Service) *Service {
	return &Service{scope: scope, stores: stores, auditor: auditor}
}

func (s *Service) Create(ctx context.Context, h *tenant.Handle, actorID uuid.UUID, req *model.CreateDepartmentRequest) (*model.Department, error) {
	d := &model.Department{
		Base:        model.Base{ID: uuid.New()},
		Name:        req.Name,
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
		Description: req.Description,
		IsActive:    true,
	}

	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		return s.stores(conn).Departments.Create(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionCreate, "department", d.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"name": d.Name, "code": d.Code},
	})
	return d, nil
}

func (s *Service) Get(ctx context.Context, h *tenant.Handle, id uuid.UUID) (*model.Department, error) {
	var d *model.Department
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		d, err = s.stores(conn).Departments.Get(ctx, id)
		return err
	})
	return d, err
}

func (s *Service) Update(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.UpdateDepartmentRequest) (*model.Department, error) {
	var d *model.Department
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		st := s.stores(conn)
		var err error
		d, err = st.Departments.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			d.Name = *req.Name
		}
		if req.Description != nil {
			d.Description = *req.Description
		}
		if req.IsActive != nil {
			d.IsActive = *req.IsActive
		}
		return st.Departments.Update(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, "department", id, &audit.LogOptions{
		Changes: req,
	})
	return d, nil
}

func (s *Service) List(ctx context.Context, h *tenant.Handle) ([]*model.Department, error) {
	var out []*model.Department
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		out, err = s.stores(conn).Departments.List(ctx)
		return err
	})
	return out, err
}
