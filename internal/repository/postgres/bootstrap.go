package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// publicDDL builds the shared tables. Applied idempotently at startup
// by both binaries; per-tenant tables come from the provisioner when
// a tenant is activated.
var publicDDL = []string{
	`CREATE TABLE IF NOT EXISTS public.tenants (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		schema_name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'PENDING',
		contact_email TEXT NOT NULL,
		contact_phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		max_users INTEGER NOT NULL DEFAULT 50,
		max_patients INTEGER NOT NULL DEFAULT 5000,
		verified_at TIMESTAMPTZ,
		activated_at TIMESTAMPTZ,
		suspended_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS public.users (
		id UUID PRIMARY KEY,
		tenant_id UUID REFERENCES public.tenants(id),
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		phone TEXT,
		department_id UUID,
		status TEXT NOT NULL DEFAULT 'active',
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		last_login_at TIMESTAMPTZ,
		failed_login_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until TIMESTAMPTZ,
		settings JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_tenant ON public.users (tenant_id)`,
	`CREATE TABLE IF NOT EXISTS public.permissions (
		id UUID PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS public.verification_tokens (
		id UUID PRIMARY KEY,
		token TEXT NOT NULL UNIQUE,
		purpose TEXT NOT NULL,
		user_id UUID REFERENCES public.users(id) ON DELETE CASCADE,
		tenant_id UUID REFERENCES public.tenants(id) ON DELETE CASCADE,
		expires_at TIMESTAMPTZ NOT NULL,
		used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS public.share_grants (
		id UUID PRIMARY KEY,
		source_tenant_id UUID NOT NULL REFERENCES public.tenants(id),
		target_tenant_id UUID REFERENCES public.tenants(id),
		patient_id UUID NOT NULL,
		token TEXT NOT NULL UNIQUE,
		mode TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		expires_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ,
		revoked_by UUID,
		created_by UUID NOT NULL,
		purpose TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_share_grants_active_expiry
		ON public.share_grants (expires_at)
		WHERE status = 'ACTIVE'`,
	`CREATE TABLE IF NOT EXISTS public.share_access_logs (
		id UUID PRIMARY KEY,
		grant_id UUID NOT NULL REFERENCES public.share_grants(id) ON DELETE CASCADE,
		accessed_by UUID,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		accessed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS public.outbox_events (
		id UUID PRIMARY KEY,
		tenant_id UUID,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		retry_count INTEGER NOT NULL DEFAULT 0,
		retry_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_events_pending
		ON public.outbox_events (created_at)
		WHERE status IN ('PENDING', 'FAILED')`,
	`CREATE TABLE IF NOT EXISTS public.outbox_events_deadletter (
		event_id UUID PRIMARY KEY,
		tenant_id UUID,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		error_message TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_retry_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS public.audit_logs (
		id UUID PRIMARY KEY,
		user_id UUID,
		tenant_id UUID,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id UUID,
		changes JSONB,
		metadata JSONB,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		access_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON public.audit_logs (created_at)`,
	`CREATE TABLE IF NOT EXISTS public.notifications (
		id UUID PRIMARY KEY,
		tenant_id UUID,
		user_id UUID,
		channel TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		recipient TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		next_retry_at TIMESTAMPTZ,
		sent_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsurePublicSchema applies the shared DDL. Safe to run from every
// instance at boot.
func EnsurePublicSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range publicDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure public schema: %w", err)
		}
	}
	return nil
}
