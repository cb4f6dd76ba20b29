package rbac

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

// Source loads effective permission sets from the tenant schema. It
// backs the authz evaluator's cache and exists separately from the
// Service so the evaluator and the service do not depend on each
// other at construction.
type Source struct {
	scope  *tenant.Scope
	stores repository.StoreFactory
}

func NewSource(scope *tenant.Scope, stores repository.StoreFactory) *Source {
	return &Source{scope: scope, stores: stores}
}

// EffectivePermissions returns the user's role names and the union of
// their permission codes in the tenant.
func (s *Source) EffectivePermissions(ctx context.Context, h *tenant.Handle, userID uuid.UUID) (roles []string, codes []string, err error) {
	err = s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		roles, codes, err = s.stores(conn).RBAC.EffectivePermissions(ctx, userID)
		return err
	})
	return roles, codes, err
}
