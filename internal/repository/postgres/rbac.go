package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
)

type rbacRepository struct {
	q repository.Querier
}

func NewRBACRepository(q repository.Querier) repository.RBACRepository {
	return &rbacRepository{q: q}
}

func (r *rbacRepository) CreateRole(ctx context.Context, role *model.Role) error {
	query := `
		INSERT INTO roles (id, tenant_id, name, description, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt

	_, err := r.q.ExecContext(ctx, query,
		role.ID,
		role.TenantID,
		role.Name,
		role.Description,
		role.IsSystem,
		role.CreatedAt,
		role.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrRoleNameTaken
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

func (r *rbacRepository) GetRole(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	query := `SELECT * FROM roles WHERE id = $1 AND deleted_at IS NULL`
	var role model.Role
	if err := r.q.GetContext(ctx, &role, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

func (r *rbacRepository) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	query := `SELECT * FROM roles WHERE name = $1 AND deleted_at IS NULL`
	var role model.Role
	if err := r.q.GetContext(ctx, &role, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}
	return &role, nil
}

func (r *rbacRepository) UpdateRole(ctx context.Context, role *model.Role) error {
	query := `
		UPDATE roles
		SET description = $1, updated_at = $2
		WHERE id = $3 AND is_system = FALSE AND deleted_at IS NULL
	`
	role.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query, role.Description, role.UpdatedAt, role.ID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrRoleNotFound
	}
	return nil
}

// DeleteRole removes a custom role. System roles never match the
// predicate and come back as not found.
func (r *rbacRepository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM roles WHERE id = $1 AND is_system = FALSE`
	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrRoleNotFound
	}
	return nil
}

func (r *rbacRepository) ListRoles(ctx context.Context) ([]*model.Role, error) {
	query := `SELECT * FROM roles WHERE deleted_at IS NULL ORDER BY name`
	var roles []*model.Role
	if err := r.q.SelectContext(ctx, &roles, query); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// SetRolePermissions replaces the role's permission set.
func (r *rbacRepository) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	query := `INSERT INTO role_permissions (role_id, permission_id, created_at) VALUES ($1, $2, NOW())`
	for _, pid := range permissionIDs {
		if _, err := r.q.ExecContext(ctx, query, roleID, pid); err != nil {
			return fmt.Errorf("failed to assign permission to role: %w", err)
		}
	}
	return nil
}

func (r *rbacRepository) ListRolePermissions(ctx context.Context, roleID uuid.UUID) ([]*model.Permission, error) {
	query := `
		SELECT p.id, p.code, p.description, p.created_at, p.updated_at
		FROM public.permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.code
	`
	var permissions []*model.Permission
	if err := r.q.SelectContext(ctx, &permissions, query, roleID); err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	return permissions, nil
}

func (r *rbacRepository) AssignRoleToUser(ctx context.Context, userID, roleID uuid.UUID) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT DO NOTHING
	`
	if _, err := r.q.ExecContext(ctx, query, userID, roleID); err != nil {
		if isForeignKeyViolation(err) {
			return model.ErrRoleNotFound
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (r *rbacRepository) RemoveRoleFromUser(ctx context.Context, userID, roleID uuid.UUID) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`
	result, err := r.q.ExecContext(ctx, query, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrRoleNotFound
	}
	return nil
}

func (r *rbacRepository) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]*model.Role, error) {
	query := `
		SELECT r.*
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND r.deleted_at IS NULL
		ORDER BY r.name
	`
	var roles []*model.Role
	if err := r.q.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	return roles, nil
}

func (r *rbacRepository) CountRoleAssignments(ctx context.Context, roleID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`
	var count int
	if err := r.q.GetContext(ctx, &count, query, roleID); err != nil {
		return 0, fmt.Errorf("failed to count role assignments: %w", err)
	}
	return count, nil
}

// EffectivePermissions resolves the union of the user's role names and
// permission codes in the current tenant schema. Feeds the authorizer
// cache.
func (r *rbacRepository) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, []string, error) {
	roleQuery := `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 AND r.deleted_at IS NULL
		ORDER BY r.name
	`
	var roles []string
	if err := r.q.SelectContext(ctx, &roles, roleQuery, userID); err != nil {
		return nil, nil, fmt.Errorf("failed to resolve user roles: %w", err)
	}

	codeQuery := `
		SELECT DISTINCT p.code
		FROM public.permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1
		ORDER BY p.code
	`
	var codes []string
	if err := r.q.SelectContext(ctx, &codes, codeQuery, userID); err != nil {
		return nil, nil, fmt.Errorf("failed to resolve user permissions: %w", err)
	}
	return roles, codes, nil
}
