package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

// ContextTenant carries the assembled *tenant.Context.
const ContextTenant = "tenant_context"

// TenantContextMiddleware turns an authenticated request into a
// tenant-scoped one: it resolves the tenant from the token claim,
// verifies membership, loads the effective permission set and gates
// actions against the tenant's lifecycle status.
type TenantContextMiddleware struct {
	resolver   *tenant.Resolver
	evaluator  *authz.Evaluator
	users      repository.UserRepository
	onboarding map[model.TenantStatus]struct{}
}

func NewTenantContextMiddleware(
	resolver *tenant.Resolver,
	evaluator *authz.Evaluator,
	users repository.UserRepository,
	onboardingStatuses []string,
) *TenantContextMiddleware {
	onboarding := make(map[model.TenantStatus]struct{}, len(onboardingStatuses))
	for _, s := range onboardingStatuses {
		onboarding[model.TenantStatus(s)] = struct{}{}
	}
	return &TenantContextMiddleware{
		resolver:   resolver,
		evaluator:  evaluator,
		users:      users,
		onboarding: onboarding,
	}
}

// Establish builds the tenant context for the request. Requests whose
// token carries no tenant claim are rejected here; platform routes do
// not use this middleware.
func (m *TenantContextMiddleware) Establish() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			abortUnauthorized(c, "missing authentication")
			return
		}
		tenantID, ok := ClaimTenantID(c)
		if !ok {
			abortForbidden(c, "no_tenant", "account is not a member of any hospital")
			return
		}

		h, err := m.resolver.ResolveAny(c.Request.Context(), tenantID)
		if err != nil {
			if errors.Is(err, model.ErrTenantNotFound) {
				abortForbidden(c, "no_tenant", "hospital is not registered")
				return
			}
			c.Error(err)
			c.Abort()
			return
		}

		if !h.Status.Operational() {
			if _, onboarding := m.onboarding[h.Status]; !onboarding {
				abortForbidden(c, "tenant_unavailable", "hospital is "+string(h.Status))
				return
			}
		}

		user, err := m.users.Get(c.Request.Context(), userID)
		if err != nil {
			abortUnauthorized(c, "account no longer exists")
			return
		}
		if user.TenantID == nil || *user.TenantID != h.ID || user.Status != model.UserStatusActive {
			abortForbidden(c, "not_a_member", "account is not an active member of this hospital")
			return
		}

		roles, codes, err := m.evaluator.EffectiveSet(c.Request.Context(), h, userID)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		tc := &tenant.Context{
			Tenant:       *h,
			UserID:       userID,
			DepartmentID: user.DepartmentID,
			Roles:        roles,
			Permissions:  codes,
		}
		c.Set(ContextTenant, tc)
		c.Request = c.Request.WithContext(tenant.NewContext(c.Request.Context(), tc))
		c.Next()
	}
}

// Require gates a route on one permission code. Tenants still
// onboarding are limited to onboarding-class actions regardless of
// role grants. Attribute narrowing on individual records happens in
// the handlers, which know the record.
func (m *TenantContextMiddleware) Require(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := TenantContext(c)
		if !ok {
			abortUnauthorized(c, "missing tenant context")
			return
		}

		if !tc.Tenant.Status.Operational() && !authz.OnboardingAction(action) {
			abortForbidden(c, "tenant_not_active", "hospital must be activated before clinical use")
			return
		}

		d := m.evaluator.Authorize(tc, action, nil)
		if !d.Allowed {
			abortForbidden(c, string(d.Reason), d.Detail)
			return
		}
		c.Next()
	}
}

// TenantContext returns the tenant context assembled by Establish.
func TenantContext(c *gin.Context) (*tenant.Context, bool) {
	v, ok := c.Get(ContextTenant)
	if !ok {
		return nil, false
	}
	tc, ok := v.(*tenant.Context)
	return tc, ok
}

func abortForbidden(c *gin.Context, reason, detail string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"code":     http.StatusForbidden,
		"reason":   reason,
		"message":  detail,
		"trace_id": c.GetString(ContextRequestID),
	})
}
