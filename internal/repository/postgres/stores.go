package postgres

import (
	"github.com/vs-ai-ds/hms-backend/internal/repository"
)

// NewTenantStores builds the tenant-scoped repository bundle over a
// connection or transaction leased by the tenant scope. The queries
// carry no schema qualifier and resolve through the handle's
// search_path.
func NewTenantStores(q repository.Querier) *repository.TenantStores {
	return &repository.TenantStores{
		Patients:      NewPatientRepository(q),
		Appointments:  NewAppointmentRepository(q),
		Prescriptions: NewPrescriptionRepository(q),
		Stock:         NewStockRepository(q),
		Admissions:    NewAdmissionRepository(q),
		Departments:   NewDepartmentRepository(q),
		RBAC:          NewRBACRepository(q),
		Workflow:      NewWorkflowRepository(q),
	}
}
