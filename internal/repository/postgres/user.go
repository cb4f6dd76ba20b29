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

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

const userColumns = `id, tenant_id, email, name, password_hash, phone, department_id,
	status, email_verified, last_login_at, failed_login_attempts, locked_until,
	settings, created_at, updated_at, deleted_at`

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO public.users (
			id, tenant_id, email, name, password_hash, phone, department_id,
			status, email_verified, settings, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	_, err := r.GetDB().ExecContext(ctx, query,
		user.ID,
		user.TenantID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Phone,
		user.DepartmentID,
		user.Status,
		user.EmailVerified,
		user.Settings,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM public.users WHERE id = $1 AND deleted_at IS NULL`, userColumns)
	var user model.User
	if err := r.GetDB().GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM public.users WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL`, userColumns)
	var user model.User
	if err := r.GetDB().GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE public.users
		SET name = $1, phone = $2, department_id = $3, settings = $4,
			password_hash = $5, updated_at = $6
		WHERE id = $7 AND deleted_at IS NULL
	`
	user.UpdatedAt = time.Now().UTC()
	_, err := r.GetDB().ExecContext(ctx, query,
		user.Name,
		user.Phone,
		user.DepartmentID,
		user.Settings,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `UPDATE public.users SET status = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`
	result, err := r.GetDB().ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) UpdateEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	query := `UPDATE public.users SET email_verified = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.GetDB().ExecContext(ctx, query, verified, id)
	if err != nil {
		return fmt.Errorf("failed to update email verification: %w", err)
	}
	return nil
}

// UpdateLoginState persists the volatile login-tracking fields only.
func (r *userRepository) UpdateLoginState(ctx context.Context, user *model.User) error {
	query := `
		UPDATE public.users
		SET failed_login_attempts = $1, locked_until = $2, last_login_at = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		user.FailedLoginAttempts,
		user.LockedUntil,
		user.LastLoginAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update login state: %w", err)
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, tenantID uuid.UUID, filter *model.UserFilter) ([]*model.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM public.users WHERE tenant_id = $1 AND deleted_at IS NULL`, userColumns)
	args := []interface{}{tenantID}
	argPos := 2

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.DepartmentID != nil {
		query += fmt.Sprintf(" AND department_id = $%d", argPos)
		args = append(args, *filter.DepartmentID)
		argPos++
	}
	if filter.SearchTerm != "" {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+filter.SearchTerm+"%")
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY name LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit(), filter.Offset())

	var users []*model.User
	if err := r.GetDB().SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *userRepository) CountActive(ctx context.Context, tenantID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM public.users
		WHERE tenant_id = $1 AND status = 'active' AND deleted_at IS NULL
	`
	var count int
	if err := r.GetDB().GetContext(ctx, &count, query, tenantID); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
