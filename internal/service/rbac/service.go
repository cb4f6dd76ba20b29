package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/service/audit"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

var (
	ErrSystemRole        = errors.New("system roles cannot be modified")
	ErrRoleInUse         = errors.New("role is still assigned to users")
	ErrUnknownPermission = errors.New("unknown permission code")
	ErrForeignUser       = errors.New("user does not belong to this tenant")
)

// CacheInvalidator drops cached effective-permission sets after a
// role or assignment change. Satisfied by the authz evaluator.
type CacheInvalidator interface {
	Invalidate(tenantID, userID uuid.UUID)
	InvalidateTenant(tenantID uuid.UUID)
}

// Service manages tenant-scoped roles and their assignments. Every
// method runs inside the tenant's schema scope; the permission
// catalogue itself lives in public and is read outside it.
type Service struct {
	scope       *tenant.Scope
	stores      repository.StoreFactory
	permRepo    repository.PermissionRepository
	userRepo    repository.UserRepository
	invalidator CacheInvalidator
	auditor     *audit.Service
}

func NewService(
	scope *tenant.Scope,
	stores repository.StoreFactory,
	permRepo repository.PermissionRepository,
	userRepo repository.UserRepository,
	invalidator CacheInvalidator,
	auditor *audit.Service,
) *Service {
	return &Service{
		scope:       scope,
		stores:      stores,
		permRepo:    permRepo,
		userRepo:    userRepo,
		invalidator: invalidator,
		auditor:     auditor,
	}
}

// CreateRole adds a custom role with its permission grants. Role
// names are stored uppercase so custom roles sort with the seeded
// ones.
func (s *Service) CreateRole(ctx context.Context, h *tenant.Handle, actorID uuid.UUID, req *model.CreateRoleRequest) (*model.RoleWithPermissions, error) {
	perms, err := s.resolvePermissions(ctx, req.PermissionCodes)
	if err != nil {
		return nil, err
	}

	role := &model.Role{
		Base:        model.Base{ID: uuid.New()},
		TenantID:    &h.ID,
		Name:        strings.ToUpper(strings.TrimSpace(req.Name)),
		Description: req.Description,
		IsSystem:    false,
	}

	err = s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)
		if err := st.RBAC.CreateRole(ctx, role); err != nil {
			return err
		}
		return st.RBAC.SetRolePermissions(ctx, role.ID, permissionIDs(perms))
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionCreate, model.AuditEntityRole, role.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"name": role.Name, "permissions": req.PermissionCodes},
	})

	return &model.RoleWithPermissions{Role: *role, Permissions: dereference(perms)}, nil
}

func (s *Service) GetRole(ctx context.Context, h *tenant.Handle, roleID uuid.UUID) (*model.RoleWithPermissions, error) {
	var out *model.RoleWithPermissions
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		st := s.stores(conn)
		role, err := st.RBAC.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		perms, err := st.RBAC.ListRolePermissions(ctx, roleID)
		if err != nil {
			return err
		}
		out = &model.RoleWithPermissions{Role: *role, Permissions: dereference(perms)}
		return nil
	})
	return out, err
}

func (s *Service) ListRoles(ctx context.Context, h *tenant.Handle) ([]*model.Role, error) {
	var roles []*model.Role
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		roles, err = s.stores(conn).RBAC.ListRoles(ctx)
		return err
	})
	return roles, err
}

// UpdateRole changes a custom role's description and permission set.
// Seeded system roles are immutable.
func (s *Service) UpdateRole(ctx context.Context, h *tenant.Handle, actorID, roleID uuid.UUID, req *model.UpdateRoleRequest) (*model.RoleWithPermissions, error) {
	var perms []*model.Permission
	var err error
	if req.PermissionCodes != nil {
		if perms, err = s.resolvePermissions(ctx, req.PermissionCodes); err != nil {
			return nil, err
		}
	}

	var out *model.RoleWithPermissions
	err = s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)
		role, err := st.RBAC.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return ErrSystemRole
		}

		if req.Description != nil {
			role.Description = *req.Description
		}
		role.UpdatedAt = time.Now().UTC()
		if err := st.RBAC.UpdateRole(ctx, role); err != nil {
			return err
		}

		if req.PermissionCodes != nil {
			if err := st.RBAC.SetRolePermissions(ctx, roleID, permissionIDs(perms)); err != nil {
				return err
			}
		}

		final, err := st.RBAC.ListRolePermissions(ctx, roleID)
		if err != nil {
			return err
		}
		out = &model.RoleWithPermissions{Role: *role, Permissions: dereference(final)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Any user holding the role may have a stale cached set now.
	s.invalidator.InvalidateTenant(h.ID)

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, model.AuditEntityRole, roleID, &audit.LogOptions{
		Changes: req,
	})
	return out, nil
}

// DeleteRole removes an unassigned custom role.
func (s *Service) DeleteRole(ctx context.Context, h *tenant.Handle, actorID, roleID uuid.UUID) error {
	err := s.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := s.stores(tx)
		role, err := st.RBAC.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return ErrSystemRole
		}
		count, err := st.RBAC.CountRoleAssignments(ctx, roleID)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %d users", ErrRoleInUse, count)
		}
		return st.RBAC.DeleteRole(ctx, roleID)
	})
	if err != nil {
		return err
	}

	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionDelete, model.AuditEntityRole, roleID, nil)
	return nil
}

// AssignRole grants a role to a staff member of the same tenant.
func (s *Service) AssignRole(ctx context.Context, h *tenant.Handle, actorID, userID, roleID uuid.UUID) error {
	if err := s.checkMembership(ctx, h, userID); err != nil {
		return err
	}

	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		return s.stores(conn).RBAC.AssignRoleToUser(ctx, userID, roleID)
	})
	if err != nil {
		return err
	}

	s.invalidator.Invalidate(h.ID, userID)
	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, model.AuditEntityRole, roleID, &audit.LogOptions{
		Metadata: map[string]interface{}{"assigned_to": userID, "operation": "assign"},
	})
	return nil
}

func (s *Service) RemoveRole(ctx context.Context, h *tenant.Handle, actorID, userID, roleID uuid.UUID) error {
	if err := s.checkMembership(ctx, h, userID); err != nil {
		return err
	}

	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		return s.stores(conn).RBAC.RemoveRoleFromUser(ctx, userID, roleID)
	})
	if err != nil {
		return err
	}

	s.invalidator.Invalidate(h.ID, userID)
	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionUpdate, model.AuditEntityRole, roleID, &audit.LogOptions{
		Metadata: map[string]interface{}{"removed_from": userID, "operation": "remove"},
	})
	return nil
}

func (s *Service) ListUserRoles(ctx context.Context, h *tenant.Handle, userID uuid.UUID) ([]*model.Role, error) {
	var roles []*model.Role
	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		roles, err = s.stores(conn).RBAC.ListUserRoles(ctx, userID)
		return err
	})
	return roles, err
}

// ListPermissions returns the platform catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	return s.permRepo.List(ctx)
}

func (s *Service) checkMembership(ctx context.Context, h *tenant.Handle, userID uuid.UUID) error {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.TenantID == nil || *u.TenantID != h.ID {
		return ErrForeignUser
	}
	return nil
}

// resolvePermissions maps codes to catalogue rows, failing on any
// code the catalogue does not know.
func (s *Service) resolvePermissions(ctx context.Context, codes []string) ([]*model.Permission, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	perms, err := s.permRepo.GetByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	if len(perms) != len(codes) {
		known := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			known[p.Code] = struct{}{}
		}
		for _, c := range codes {
			if _, ok := known[c]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, c)
			}
		}
	}
	return perms, nil
}

func permissionIDs(perms []*model.Permission) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	return ids
}

func dereference(perms []*model.Permission) []model.Permission {
	out := make([]model.Permission, 0, len(perms))
	for _, p := range perms {
		out = append(out, *p)
	}
	return out
}
