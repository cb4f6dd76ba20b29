package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
	"github.com/vs-ai-ds/hms-backend/pkg/metrics"
)

// Attributes describe the resource a request targets. Nil fields mean
// the attribute does not apply to the operation.
type Attributes struct {
	PatientID    *uuid.UUID
	OwnerID      *uuid.UUID
	DepartmentID *uuid.UUID
}

// RoleSource loads a user's roles and permission codes inside the
// tenant schema.
type RoleSource interface {
	EffectivePermissions(ctx context.Context, h *tenant.Handle, userID uuid.UUID) (roles []string, codes []string, err error)
}

// Evaluator computes authorization decisions. RBAC grants the action,
// ABAC attributes narrow it, and a share grant caps everything when
// present. Decisions are pure functions of their inputs; the only
// state is the effective-set cache.
type Evaluator struct {
	source  RoleSource
	cache   *cache.Cache
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewEvaluator(source RoleSource, cacheTTL time.Duration, m *metrics.Metrics) *Evaluator {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &Evaluator{
		source:  source,
		cache:   cache.New(cacheTTL, 2*cacheTTL),
		metrics: m,
		now:     time.Now,
	}
}

type effectiveSet struct {
	Roles []string
	Codes map[string]struct{}
}

func setKey(tenantID, userID uuid.UUID) string {
	return tenantID.String() + "/" + userID.String()
}

// EffectiveSet returns the user's roles and permission codes for the
// tenant, from cache when fresh.
func (e *Evaluator) EffectiveSet(ctx context.Context, h *tenant.Handle, userID uuid.UUID) ([]string, map[string]struct{}, error) {
	key := setKey(h.ID, userID)
	if cached, ok := e.cache.Get(key); ok {
		if e.metrics != nil {
			e.metrics.AuthzCacheHits.Inc()
		}
		set := cached.(effectiveSet)
		return set.Roles, set.Codes, nil
	}
	if e.metrics != nil {
		e.metrics.AuthzCacheMisses.Inc()
	}

	roles, codes, err := e.source.EffectivePermissions(ctx, h, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load permissions: %w", err)
	}

	set := effectiveSet{Roles: roles, Codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		set.Codes[c] = struct{}{}
	}
	e.cache.SetDefault(key, set)
	return set.Roles, set.Codes, nil
}

// Invalidate drops the cached set for one user in one tenant. Called
// after role or role-permission changes.
func (e *Evaluator) Invalidate(tenantID, userID uuid.UUID) {
	e.cache.Delete(setKey(tenantID, userID))
}

// InvalidateTenant drops every cached set for the tenant.
func (e *Evaluator) InvalidateTenant(tenantID uuid.UUID) {
	prefix := tenantID.String() + "/"
	for key := range e.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			e.cache.Delete(key)
		}
	}
}

// Authorize decides whether the request may perform action. The
// evaluation order is fixed: grant narrowing, then role membership,
// then attribute narrowing. The first failing stage decides.
func (e *Evaluator) Authorize(tc *tenant.Context, action string, attrs *Attributes) Decision {
	var timer *prometheus.Timer
	if e.metrics != nil {
		timer = prometheus.NewTimer(e.metrics.AuthzEvalLatency)
	}
	d := e.authorize(tc, action, attrs)
	if timer != nil {
		timer.ObserveDuration()
	}
	if e.metrics != nil {
		outcome := "deny"
		if d.Allowed {
			outcome = "allow"
		}
		e.metrics.AuthzDecisions.WithLabelValues(outcome, string(d.Reason)).Inc()
	}
	return d
}

func (e *Evaluator) authorize(tc *tenant.Context, action string, attrs *Attributes) Decision {
	if tc.Grant != nil {
		return e.grantDecision(tc, action, attrs)
	}

	if !tc.Has(action) {
		return Deny(ReasonRoleInsufficient, fmt.Sprintf("missing permission %s", action))
	}

	return e.attributeDecision(tc, attrs)
}

// grantDecision is the whole authority for token-authenticated
// requests. The grant defines what the bearer may do; tenant roles do
// not transfer across the share boundary.
func (e *Evaluator) grantDecision(tc *tenant.Context, action string, attrs *Attributes) Decision {
	g := tc.Grant
	if !e.now().Before(g.ExpiresAt) {
		return Deny(ReasonGrantExpired, "share grant has expired")
	}
	if g.Mode == model.ShareModeReadOnly && !strings.HasSuffix(action, ":view") {
		return Deny(ReasonGrantScopeExceeded, "grant permits read-only access")
	}
	if attrs == nil || attrs.PatientID == nil {
		return Deny(ReasonGrantScopeExceeded, "grant is limited to a single patient record")
	}
	if *attrs.PatientID != g.PatientID {
		return Deny(ReasonGrantScopeExceeded, "grant does not cover this patient")
	}
	return Allow()
}

// Roles whose record access is narrowed by attributes, and roles that
// see everything in the tenant.
var (
	deptScopedRoles  = map[string]struct{}{model.RoleDoctor: {}, model.RoleNurse: {}}
	ownerScopedRoles = map[string]struct{}{model.RoleDoctor: {}}
	bypassRoles      = map[string]struct{}{
		model.RoleSuperAdmin:    {},
		model.RoleHospitalAdmin: {},
		model.RoleReceptionist:  {},
	}
)

func (e *Evaluator) attributeDecision(tc *tenant.Context, attrs *Attributes) Decision {
	if attrs == nil {
		return Allow()
	}
	for _, r := range tc.Roles {
		if _, ok := bypassRoles[r]; ok {
			return Allow()
		}
	}

	if attrs.OwnerID != nil && hasAny(tc.Roles, ownerScopedRoles) && *attrs.OwnerID != tc.UserID {
		return Deny(ReasonAttributeMismatch, "record is assigned to another clinician")
	}

	if attrs.DepartmentID != nil && hasAny(tc.Roles, deptScopedRoles) {
		if tc.DepartmentID == nil || *tc.DepartmentID != *attrs.DepartmentID {
			return Deny(ReasonAttributeMismatch, "record belongs to another department")
		}
	}

	return Allow()
}

func hasAny(roles []string, set map[string]struct{}) bool {
	for _, r := range roles {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
