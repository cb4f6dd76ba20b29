package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/email"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/service/audit"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
	"github.com/vs-ai-ds/hms-backend/pkg/security"
)

const bcryptCost = 12

var (
	ErrNotTenantMember = errors.New("user does not belong to this tenant")
	ErrSelfDeactivate  = errors.New("cannot deactivate your own account")
)

// CacheInvalidator drops a user's cached permission set when their
// access changes.
type CacheInvalidator interface {
	Invalidate(tenantID, userID uuid.UUID)
}

// Service manages staff accounts. Account rows live in the public
// schema; role bindings live with the tenant, so creation spans both.
type Service struct {
	repo        repository.UserRepository
	tenantRepo  repository.TenantRepository
	scope       *tenant.Scope
	stores      repository.StoreFactory
	outboxRepo  repository.OutboxRepository
	emailSvc    email.Service
	auditor     *audit.Service
	invalidator CacheInvalidator
	hasher      security.PasswordHasher
	logger      zerolog.Logger
}

func NewService(
	repo repository.UserRepository,
	tenantRepo repository.TenantRepository,
	scope *tenant.Scope,
	stores repository.StoreFactory,
	outboxRepo repository.OutboxRepository,
	emailSvc email.Service,
	auditor *audit.Service,
	invalidator CacheInvalidator,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:        repo,
		tenantRepo:  tenantRepo,
		scope:       scope,
		stores:      stores,
		outboxRepo:  outboxRepo,
		emailSvc:    emailSvc,
		auditor:     auditor,
		invalidator: invalidator,
		hasher:      security.NewBcryptHasher(bcryptCost),
		logger:      logger,
	}
}

// Create adds a staff account and its initial role bindings, enforcing
// the tenant's user ceiling.
func (s *Service) Create(ctx context.Context, h *tenant.Handle, actorID uuid.UUID, req *model.CreateUserRequest) (*model.User, error) {
	t, err := s.tenantRepo.Get(ctx, h.ID)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.CountActive(ctx, h.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if active >= t.MaxUsers {
		return nil, model.ErrTenantLimitReached
	}

	if req.DepartmentID != nil {
		if err := s.checkDepartment(ctx, h, *req.DepartmentID); err != nil {
			return nil, err
		}
	}

	roleIDs, err := parseRoleIDs(req.RoleIDs)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &model.User{
		Base:         model.Base{ID: uuid.New()},
		TenantID:     &h.ID,
		Email:        strings.ToLower(req.Email),
		Name:         req.Name,
		PasswordHash: hash,
		Phone:        req.Phone,
		DepartmentID: req.DepartmentID,
		Status:       model.UserStatusActive,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	if len(roleIDs) > 0 {
		err = s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
			st := s.stores(tx)
			for _, roleID := range roleIDs {
				if err := st.RBAC.AssignRoleToUser(ctx, u.ID, roleID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to assign roles: %w", err)
		}
	}

	if err := s.emailSvc.SendWelcome(ctx, u.Email, u.Name); err != nil {
		s.logger.Warn().Err(err).Str("email", u.Email).Msg("failed to send welcome email")
	}

	s.emit(ctx, h.ID, u)
	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionCreate, model.AuditEntityUser, u.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"email": u.Email, "roles": req.RoleIDs},
	})
	return u, nil
}

func (s *Service) Get(ctx context.Context, h *tenant.Handle, id uuid.UUID) (*model.User, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.TenantID == nil || *u.TenantID != h.ID {
		return nil, ErrNotTenantMember
	}
	return u, nil
}

// Update changes profile fields. Password changes go through the auth
// service so the current password is verified.
func (s *Service) Update(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID, req *model.UpdateUserRequest) (*model.User, error) {
	u, err := s.Get(ctx, h, id)
	if err != nil {
		return nil, err
	}

	if req.DepartmentID != nil {
		if err := s.checkDepartment(ctx, h, *req.DepartmentID); err != nil {
			return nil, err
		}
		u.DepartmentID = req.DepartmentID
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Email != nil {
		u.Email = strings.ToLower(*req.Email)
	}
	if req.Phone != nil {
		u.Phone = req.Phone
	}
	if req.Settings != nil {
		u.Settings = req.Settings
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}

	if req.Status != nil && *req.Status != u.Status {
		if err := s.setStatus(ctx, h, actorID, u, *req.Status); err != nil {
			return nil, err
		}
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, model.AuditEntityUser, id, &audit.LogOptions{
		Changes: req,
	})
	return u, nil
}

// Deactivate retires a staff account. Their cached permission set is
// dropped so in-flight sessions lose access at the next check.
func (s *Service) Deactivate(ctx context.Context, h *tenant.Handle, actorID, id uuid.UUID) error {
	if actorID == id {
		return ErrSelfDeactivate
	}
	u, err := s.Get(ctx, h, id)
	if err != nil {
		return err
	}
	return s.setStatus(ctx, h, actorID, u, model.UserStatusInactive)
}

func (s *Service) List(ctx context.Context, h *tenant.Handle, filter *model.UserFilter) ([]*model.User, error) {
	return s.repo.List(ctx, h.ID, filter)
}

func (s *Service) setStatus(ctx context.Context, h *tenant.Handle, actorID uuid.UUID, u *model.User, status string) error {
	if err := s.repo.UpdateStatus(ctx, u.ID, status); err != nil {
		return err
	}
	u.Status = status
	s.invalidator.Invalidate(h.ID, u.ID)

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, model.AuditEntityUser, u.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"status": status},
	})
	return nil
}

func (s *Service) checkDepartment(ctx context.Context, h *tenant.Handle, departmentID uuid.UUID) error {
	return s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		_, err := s.stores(conn).Departments.Get(ctx, departmentID)
		return err
	})
}

func (s *Service) emit(ctx context.Context, tenantID uuid.UUID, u *model.User) {
	payload, err := json.Marshal(map[string]interface{}{
		"user_id": u.ID,
		"email":   u.Email,
		"name":    u.Name,
	})
	if err != nil {
		return
	}
	event := &model.OutboxEvent{
		ID:        uuid.New(),
		TenantID:  &tenantID,
		EventType: model.EventUserCreated,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.outboxRepo.Create(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("event", model.EventUserCreated).Msg("failed to write outbox event")
	}
}

func parseRoleIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("invalid role id %q: %w", r, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
