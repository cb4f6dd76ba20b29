package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
)

// Querier is the subset of sqlx shared by *sqlx.DB, *sqlx.Conn and
// *sqlx.Tx. Tenant-scoped repositories are built over whichever handle
// the current unit of work holds, so the same query code runs on a
// schema-bound connection or inside its transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

// All repository interfaces in one file
type (
	// TenantRepository handles tenant rows in the shared public schema.
	TenantRepository interface {
		Create(ctx context.Context, tenant *model.Tenant) error
		Get(ctx context.Context, id uuid.UUID) (*model.Tenant, error)
		GetBySlug(ctx context.Context, slug string) (*model.Tenant, error)
		Update(ctx context.Context, tenant *model.Tenant) error
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.TenantStatus, at time.Time) (bool, error)
		UpdateLimits(ctx context.Context, id uuid.UUID, maxUsers, maxPatients int) error
		List(ctx context.Context, filter *model.TenantListFilter) ([]*model.Tenant, error)
	}

	// SchemaProvisioner creates and seeds per-tenant schemas. Runs
	// against the admin connection with qualified names, never through
	// a tenant scope, because the tenant is not ACTIVE yet when its
	// schema is built.
	SchemaProvisioner interface {
		CreateTenantSchema(ctx context.Context, schemaName string) error
		SeedTenantRoles(ctx context.Context, schemaName string, templates map[string][]string) error
		GrantSeededRole(ctx context.Context, schemaName, roleName string, userID uuid.UUID) error
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
		UpdateEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error
		UpdateLoginState(ctx context.Context, user *model.User) error
		List(ctx context.Context, tenantID uuid.UUID, filter *model.UserFilter) ([]*model.User, error)
		CountActive(ctx context.Context, tenantID uuid.UUID) (int, error)
	}

	TokenRepository interface {
		Create(ctx context.Context, token *model.VerificationToken) error
		Consume(ctx context.Context, token, purpose string, now time.Time) (*model.VerificationToken, error)
		DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	}

	// PermissionRepository maintains the platform-wide permission
	// catalogue in the public schema.
	PermissionRepository interface {
		UpsertMany(ctx context.Context, permissions []*model.Permission) error
		List(ctx context.Context) ([]*model.Permission, error)
		GetByCodes(ctx context.Context, codes []string) ([]*model.Permission, error)
	}

	// RBACRepository reads and writes roles inside the tenant schema.
	// Permission definitions live in public, assignments live with the
	// tenant.
	RBACRepository interface {
		CreateRole(ctx context.Context, role *model.Role) error
		GetRole(ctx context.Context, id uuid.UUID) (*model.Role, error)
		GetRoleByName(ctx context.Context, name string) (*model.Role, error)
		UpdateRole(ctx context.Context, role *model.Role) error
		DeleteRole(ctx context.Context, id uuid.UUID) error
		ListRoles(ctx context.Context) ([]*model.Role, error)
		SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
		ListRolePermissions(ctx context.Context, roleID uuid.UUID) ([]*model.Permission, error)
		AssignRoleToUser(ctx context.Context, userID, roleID uuid.UUID) error
		RemoveRoleFromUser(ctx context.Context, userID, roleID uuid.UUID) error
		ListUserRoles(ctx context.Context, userID uuid.UUID) ([]*model.Role, error)
		CountRoleAssignments(ctx context.Context, roleID uuid.UUID) (int, error)
		EffectivePermissions(ctx context.Context, userID uuid.UUID) (roles []string, codes []string, err error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByMRN(ctx context.Context, mrn string) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, error)
		CountActive(ctx context.Context) (int, error)
		Summary(ctx context.Context, id uuid.UUID) (*model.PatientSummary, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, error)
		SlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error)
		PatientOverlap(ctx context.Context, patientID uuid.UUID, at time.Time, excludeID *uuid.UUID) (bool, error)
		Reschedule(ctx context.Context, id uuid.UUID, at time.Time, version int) (bool, error)
		ListOpenForPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error)
		ListStaleScheduled(ctx context.Context, before time.Time, limit int) ([]*model.Appointment, error)
	}

	PrescriptionRepository interface {
		Create(ctx context.Context, prescription *model.Prescription) error
		Get(ctx context.Context, id uuid.UUID) (*model.Prescription, error)
		GetItems(ctx context.Context, prescriptionID uuid.UUID) ([]model.PrescriptionItem, error)
		ReplaceItems(ctx context.Context, prescriptionID uuid.UUID, items []model.PrescriptionItem) error
		UpdateDraft(ctx context.Context, prescription *model.Prescription) error
		List(ctx context.Context, filter *model.PrescriptionFilter) ([]*model.Prescription, error)
		HasDraftForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error)
		HasOpenForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error)
	}

	StockRepository interface {
		Create(ctx context.Context, item *model.StockItem) error
		Get(ctx context.Context, id uuid.UUID) (*model.StockItem, error)
		Update(ctx context.Context, item *model.StockItem) error
		List(ctx context.Context, filter *model.StockItemFilter) ([]*model.StockItem, error)
		// Adjust applies a signed delta and records it. Returns false
		// when the delta would drive the level negative.
		Adjust(ctx context.Context, adj *model.StockAdjustment) (bool, error)
		// Deduct removes qty conditionally on sufficient stock.
		Deduct(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	}

	AdmissionRepository interface {
		Create(ctx context.Context, admission *model.Admission) error
		Get(ctx context.Context, id uuid.UUID) (*model.Admission, error)
		List(ctx context.Context, filter *model.AdmissionFilter) ([]*model.Admission, error)
		HasActiveForPatient(ctx context.Context, patientID uuid.UUID) (bool, error)
	}

	DepartmentRepository interface {
		Create(ctx context.Context, department *model.Department) error
		Get(ctx context.Context, id uuid.UUID) (*model.Department, error)
		Update(ctx context.Context, department *model.Department) error
		List(ctx context.Context) ([]*model.Department, error)
	}

	// WorkflowRepository persists status transitions. ApplyTransition
	// and AppendHistory satisfy the engine's store contract.
	WorkflowRepository interface {
		ApplyTransition(ctx context.Context, tx *sqlx.Tx, req *workflow.Request) (bool, error)
		AppendHistory(ctx context.Context, tx *sqlx.Tx, rec *model.WorkflowTransition) error
		ListHistory(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.WorkflowTransition, error)
	}

	ShareRepository interface {
		Create(ctx context.Context, grant *model.ShareGrant) error
		Get(ctx context.Context, id uuid.UUID) (*model.ShareGrant, error)
		GetByToken(ctx context.Context, token string) (*model.ShareGrant, error)
		ListBySource(ctx context.Context, sourceTenantID uuid.UUID, filter *model.ShareFilter) ([]*model.ShareGrant, error)
		Revoke(ctx context.Context, id, revokedBy uuid.UUID, at time.Time) (bool, error)
		MarkExpired(ctx context.Context, id uuid.UUID) (bool, error)
		ExpireStale(ctx context.Context, now time.Time) (int64, error)
		LogAccess(ctx context.Context, entry *model.ShareAccessLog) error
		ListAccess(ctx context.Context, grantID uuid.UUID) ([]*model.ShareAccessLog, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error)
		BeginTx(ctx context.Context) (*sqlx.Tx, error)
		UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		MoveToDeadLetter(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filter *model.AuditLogFilter) ([]*model.AuditLog, error)
		DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
		Update(ctx context.Context, notification *model.Notification) error
		ListDue(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error)
	}
)
