package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

// tenantDDL is applied inside the new schema at provisioning time.
// Statements use %[1]s for the quoted schema name. Cross-schema
// references (users, permissions) point at public explicitly.
var tenantDDL = []string{
	`CREATE TABLE IF NOT EXISTS %[1]s.departments (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.patients (
		id UUID PRIMARY KEY,
		mrn TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		date_of_birth DATE,
		gender TEXT NOT NULL DEFAULT 'unknown',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		blood_group TEXT NOT NULL DEFAULT '',
		allergies TEXT NOT NULL DEFAULT '',
		department_id UUID REFERENCES %[1]s.departments(id),
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.appointments (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES %[1]s.patients(id),
		doctor_id UUID NOT NULL REFERENCES public.users(id),
		department_id UUID REFERENCES %[1]s.departments(id),
		scheduled_at TIMESTAMPTZ NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'SCHEDULED',
		version INTEGER NOT NULL DEFAULT 1,
		checked_in_at TIMESTAMPTZ,
		consultation_started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		cancellation_reason TEXT,
		marked_no_show_at TIMESTAMPTZ,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_doctor_slot
		ON %[1]s.appointments (doctor_id, scheduled_at)
		WHERE status IN ('SCHEDULED', 'CHECKED_IN', 'IN_CONSULTATION')`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_patient
		ON %[1]s.appointments (patient_id, scheduled_at)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.admissions (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES %[1]s.patients(id),
		doctor_id UUID NOT NULL REFERENCES public.users(id),
		department_id UUID REFERENCES %[1]s.departments(id),
		ward_name TEXT NOT NULL,
		bed_number TEXT NOT NULL DEFAULT '',
		diagnosis TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		version INTEGER NOT NULL DEFAULT 1,
		admitted_at TIMESTAMPTZ NOT NULL,
		discharged_at TIMESTAMPTZ,
		discharge_summary TEXT NOT NULL DEFAULT '',
		discharged_by UUID,
		created_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_admissions_active_patient
		ON %[1]s.admissions (patient_id)
		WHERE status = 'ACTIVE'`,
	`CREATE TABLE IF NOT EXISTS %[1]s.prescriptions (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES %[1]s.patients(id),
		doctor_id UUID NOT NULL REFERENCES public.users(id),
		appointment_id UUID REFERENCES %[1]s.appointments(id),
		admission_id UUID REFERENCES %[1]s.admissions(id),
		status TEXT NOT NULL DEFAULT 'DRAFT',
		version INTEGER NOT NULL DEFAULT 1,
		notes TEXT NOT NULL DEFAULT '',
		issued_at TIMESTAMPTZ,
		dispensed_at TIMESTAMPTZ,
		dispensed_by UUID,
		cancelled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ,
		CHECK (num_nonnulls(appointment_id, admission_id) = 1)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_prescriptions_appointment_open
		ON %[1]s.prescriptions (appointment_id)
		WHERE appointment_id IS NOT NULL AND status != 'CANCELLED'`,
	`CREATE TABLE IF NOT EXISTS %[1]s.stock_items (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT NOT NULL UNIQUE,
		unit TEXT NOT NULL DEFAULT 'unit',
		current_stock INTEGER NOT NULL DEFAULT 0 CHECK (current_stock >= 0),
		reorder_level INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.prescription_items (
		id UUID PRIMARY KEY,
		prescription_id UUID NOT NULL REFERENCES %[1]s.prescriptions(id) ON DELETE CASCADE,
		stock_item_id UUID REFERENCES %[1]s.stock_items(id),
		medication_name TEXT NOT NULL,
		dosage TEXT NOT NULL,
		frequency TEXT NOT NULL,
		duration_days INTEGER NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		instructions TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.stock_adjustments (
		id UUID PRIMARY KEY,
		stock_item_id UUID NOT NULL REFERENCES %[1]s.stock_items(id),
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL,
		adjusted_by UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.roles (
		id UUID PRIMARY KEY,
		tenant_id UUID,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.role_permissions (
		role_id UUID NOT NULL REFERENCES %[1]s.roles(id) ON DELETE CASCADE,
		permission_id UUID NOT NULL REFERENCES public.permissions(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (role_id, permission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.user_roles (
		user_id UUID NOT NULL REFERENCES public.users(id) ON DELETE CASCADE,
		role_id UUID NOT NULL REFERENCES %[1]s.roles(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, role_id)
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.workflow_transitions (
		id UUID PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id UUID NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		actor_id UUID NOT NULL,
		context JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_transitions_entity
		ON %[1]s.workflow_transitions (entity_type, entity_id, created_at)`,
}

type schemaProvisioner struct {
	BaseRepository
}

func NewSchemaProvisioner(base BaseRepository) repository.SchemaProvisioner {
	return &schemaProvisioner{base}
}

// CreateTenantSchema builds the schema and its tables in one
// transaction. Runs with fully qualified names because the tenant is
// not resolvable through a scope until it goes ACTIVE.
func (r *schemaProvisioner) CreateTenantSchema(ctx context.Context, schemaName string) error {
	if !tenant.ValidSchemaName(schemaName) {
		return tenant.ErrInvalidSchemaName
	}
	quoted := pq.QuoteIdentifier(schemaName)

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoted)); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", schemaName, err)
		}
		for _, stmt := range tenantDDL {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(stmt, quoted)); err != nil {
				return fmt.Errorf("failed to provision schema %s: %w", schemaName, err)
			}
		}
		return nil
	})
}

// SeedTenantRoles creates the system roles and binds their permission
// sets from the public catalogue. Idempotent so activation can retry.
func (r *schemaProvisioner) SeedTenantRoles(ctx context.Context, schemaName string, templates map[string][]string) error {
	if !tenant.ValidSchemaName(schemaName) {
		return tenant.ErrInvalidSchemaName
	}
	quoted := pq.QuoteIdentifier(schemaName)

	insertRole := fmt.Sprintf(`
		INSERT INTO %s.roles (id, name, description, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4)
		ON CONFLICT (name) DO NOTHING
	`, quoted)
	bindPermissions := fmt.Sprintf(`
		INSERT INTO %[1]s.role_permissions (role_id, permission_id)
		SELECT r.id, p.id
		FROM %[1]s.roles r
		JOIN public.permissions p ON p.code = ANY($2)
		WHERE r.name = $1
		ON CONFLICT DO NOTHING
	`, quoted)

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for name, codes := range templates {
			if _, err := tx.ExecContext(ctx, insertRole, uuid.New(), name, name+" system role", now); err != nil {
				return fmt.Errorf("failed to seed role %s: %w", name, err)
			}
			if len(codes) == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, bindPermissions, name, pq.Array(codes)); err != nil {
				return fmt.Errorf("failed to bind permissions for role %s: %w", name, err)
			}
		}
		return nil
	})
}

// GrantSeededRole assigns a seeded role to a user by role name. Used
// at activation to bind the onboarding admin before the tenant can be
// reached through a scope. Idempotent like the seeding it follows.
func (r *schemaProvisioner) GrantSeededRole(ctx context.Context, schemaName, roleName string, userID uuid.UUID) error {
	if !tenant.ValidSchemaName(schemaName) {
		return tenant.ErrInvalidSchemaName
	}
	quoted := pq.QuoteIdentifier(schemaName)

	var roleID uuid.UUID
	lookup := fmt.Sprintf(`SELECT id FROM %s.roles WHERE name = $1 AND deleted_at IS NULL`, quoted)
	if err := r.db.GetContext(ctx, &roleID, lookup, roleName); err != nil {
		return fmt.Errorf("role %s not seeded in schema %s: %w", roleName, schemaName, err)
	}

	assign := fmt.Sprintf(`
		INSERT INTO %s.user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, quoted)
	if _, err := r.db.ExecContext(ctx, assign, userID, roleID); err != nil {
		return fmt.Errorf("failed to grant role %s: %w", roleName, err)
	}
	return nil
}
