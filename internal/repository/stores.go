package repository

// TenantStores bundles the repositories that operate inside a tenant
// schema. A fresh bundle is built for every unit of work over the
// handle the tenant scope leased, so queries inherit its search_path.
type TenantStores struct {
	Patients      PatientRepository
	Appointments  AppointmentRepository
	Prescriptions PrescriptionRepository
	Stock         StockRepository
	Admissions    AdmissionRepository
	Departments   DepartmentRepository
	RBAC          RBACRepository
	Workflow      WorkflowRepository
}

// StoreFactory builds a TenantStores bundle over a connection or
// transaction. Services hold the factory instead of concrete repos.
type StoreFactory func(q Querier) *TenantStores
