package authz

import (
	"strings"

	"github.com/vs-ai-ds/hms-backend/internal/model"
)

// Permission codes, "resource:action". The catalogue is seeded into
// the public schema at bootstrap and referenced by role grants.
const (
	PermDashboardView = "dashboard:view"

	PermPatientsView   = "patients:view"
	PermPatientsCreate = "patients:create"
	PermPatientsUpdate = "patients:update"

	PermAppointmentsView         = "appointments:view"
	PermAppointmentsCreate       = "appointments:create"
	PermAppointmentsUpdateStatus = "appointments:update_status"

	PermPrescriptionsView     = "prescriptions:view"
	PermPrescriptionsCreate   = "prescriptions:create"
	PermPrescriptionsIssue    = "prescriptions:issue"
	PermPrescriptionsDispense = "prescriptions:dispense"
	PermPrescriptionsCancel   = "prescriptions:cancel"

	PermIPDView      = "ipd:view"
	PermIPDAdmit     = "ipd:admit"
	PermIPDDischarge = "ipd:discharge"

	PermStockItemsView   = "stock_items:view"
	PermStockItemsManage = "stock_items:manage"

	PermUsersView       = "users:view"
	PermUsersCreate     = "users:create"
	PermUsersUpdate     = "users:update"
	PermUsersDeactivate = "users:deactivate"

	PermRolesView   = "roles:view"
	PermRolesCreate = "roles:create"
	PermRolesUpdate = "roles:update"
	PermRolesAssign = "roles:assign"

	PermDepartmentsView   = "departments:view"
	PermDepartmentsCreate = "departments:create"
	PermDepartmentsUpdate = "departments:update"

	PermSharingCreate = "sharing:create"
	PermSharingView   = "sharing:view"
	PermSharingRevoke = "sharing:revoke"

	PermAuditView = "audit:view"

	PermTenantView   = "tenant:view"
	PermTenantUpdate = "tenant:update"
)

// Definition is one catalogue entry.
type Definition struct {
	Code        string
	Description string
}

// Catalogue returns every permission the platform knows about.
func Catalogue() []Definition {
	return []Definition{
		{PermDashboardView, "View the tenant dashboard"},
		{PermPatientsView, "View patient records"},
		{PermPatientsCreate, "Register patients"},
		{PermPatientsUpdate, "Update patient records"},
		{PermAppointmentsView, "View appointments"},
		{PermAppointmentsCreate, "Book appointments"},
		{PermAppointmentsUpdateStatus, "Move appointments through their workflow"},
		{PermPrescriptionsView, "View prescriptions"},
		{PermPrescriptionsCreate, "Create draft prescriptions"},
		{PermPrescriptionsIssue, "Issue prescriptions"},
		{PermPrescriptionsDispense, "Dispense prescriptions"},
		{PermPrescriptionsCancel, "Cancel prescriptions"},
		{PermIPDView, "View inpatient admissions"},
		{PermIPDAdmit, "Admit patients"},
		{PermIPDDischarge, "Discharge patients"},
		{PermStockItemsView, "View pharmacy stock"},
		{PermStockItemsManage, "Manage pharmacy stock"},
		{PermUsersView, "View staff accounts"},
		{PermUsersCreate, "Create staff accounts"},
		{PermUsersUpdate, "Update staff accounts"},
		{PermUsersDeactivate, "Deactivate staff accounts"},
		{PermRolesView, "View roles"},
		{PermRolesCreate, "Create roles"},
		{PermRolesUpdate, "Update roles"},
		{PermRolesAssign, "Assign roles to staff"},
		{PermDepartmentsView, "View departments"},
		{PermDepartmentsCreate, "Create departments"},
		{PermDepartmentsUpdate, "Update departments"},
		{PermSharingCreate, "Issue cross-hospital share grants"},
		{PermSharingView, "View share grants"},
		{PermSharingRevoke, "Revoke share grants"},
		{PermAuditView, "View the audit trail"},
		{PermTenantView, "View hospital settings"},
		{PermTenantUpdate, "Update hospital settings"},
	}
}

// AllCodes returns the catalogue codes in declaration order.
func AllCodes() []string {
	defs := Catalogue()
	codes := make([]string, 0, len(defs))
	for _, d := range defs {
		codes = append(codes, d.Code)
	}
	return codes
}

// OnboardingAction reports whether the code may run before the tenant
// is ACTIVE. Staff setup and hospital settings are open during
// onboarding; clinical actions are not.
func OnboardingAction(code string) bool {
	if code == PermRolesView {
		return true
	}
	return strings.HasPrefix(code, "tenant:") || strings.HasPrefix(code, "users:")
}

// RoleTemplates maps the seeded system roles to their permission
// grants. HOSPITAL_ADMIN holds the full catalogue.
func RoleTemplates() map[string][]string {
	return map[string][]string{
		model.RoleHospitalAdmin: AllCodes(),
		model.RoleDoctor: {
			PermDashboardView,
			PermPatientsView, PermPatientsCreate, PermPatientsUpdate,
			PermAppointmentsView, PermAppointmentsUpdateStatus,
			PermPrescriptionsView, PermPrescriptionsCreate,
			PermPrescriptionsIssue, PermPrescriptionsCancel,
			PermIPDView, PermIPDAdmit, PermIPDDischarge,
			PermSharingCreate, PermSharingView,
		},
		model.RoleNurse: {
			PermDashboardView,
			PermPatientsView,
			PermAppointmentsView, PermAppointmentsUpdateStatus,
			PermPrescriptionsView,
			PermIPDView,
		},
		model.RolePharmacist: {
			PermDashboardView,
			PermPrescriptionsView, PermPrescriptionsDispense,
			PermStockItemsView, PermStockItemsManage,
		},
		model.RoleReceptionist: {
			PermDashboardView,
			PermPatientsView, PermPatientsCreate, PermPatientsUpdate,
			PermAppointmentsView, PermAppointmentsCreate,
			PermAppointmentsUpdateStatus,
		},
	}
}
