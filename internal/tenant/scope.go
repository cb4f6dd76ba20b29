package tenant

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/pkg/metrics"
)

// schemaNamePattern matches schema names assigned at provisioning.
// Binding anything else is refused.
var schemaNamePattern = regexp.MustCompile(`^tenant_[0-9a-f]{8}$`)

const resetTimeout = 5 * time.Second

// Scope leases a pooled connection, binds its search_path to the
// tenant schema for one unit of work and restores it before the
// connection returns to the pool. A connection whose reset fails is
// discarded rather than pooled.
type Scope struct {
	db      *sqlx.DB
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewScope(db *sqlx.DB, logger zerolog.Logger, m *metrics.Metrics) *Scope {
	return &Scope{db: db, logger: logger, metrics: m}
}

// Run executes fn on a connection bound to the tenant schema. The
// context passed to fn carries a scope marker; calling Run again with
// it returns ErrNestedScope. Transactions opened on conn inherit the
// binding.
func (s *Scope) Run(ctx context.Context, h *Handle, fn func(ctx context.Context, conn *sqlx.Conn) error) error {
	if _, ok := scopedTenant(ctx); ok {
		s.count("nested")
		return ErrNestedScope
	}
	if !h.Status.Operational() {
		return &UnavailableError{TenantID: h.ID.String(), Status: h.Status}
	}
	return s.run(ctx, h, fn, true)
}

// RunShared executes fn against the source tenant of a share grant.
// It skips the nested-scope check on purpose: redemption may happen
// while the request is already scoped to the redeeming tenant. Every
// caller records the access in the share access log.
func (s *Scope) RunShared(ctx context.Context, h *Handle, fn func(ctx context.Context, conn *sqlx.Conn) error) error {
	if !h.Status.Operational() {
		return &UnavailableError{TenantID: h.ID.String(), Status: h.Status}
	}
	return s.run(ctx, h, fn, false)
}

// RunTx executes fn inside a transaction opened on the schema-bound
// connection, so every statement in fn inherits the binding. Rolls
// back on error or panic, commits otherwise.
func (s *Scope) RunTx(ctx context.Context, h *Handle, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return s.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		tx, err := conn.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		defer func() {
			if p := recover(); p != nil {
				tx.Rollback()
				panic(p)
			}
		}()

		if err := fn(ctx, tx); err != nil {
			tx.Rollback()
			return err
		}

		return tx.Commit()
	})
}

func (s *Scope) run(ctx context.Context, h *Handle, fn func(ctx context.Context, conn *sqlx.Conn) error, mark bool) error {
	if !schemaNamePattern.MatchString(h.SchemaName) {
		s.count("invalid")
		return fmt.Errorf("%w: %q", ErrInvalidSchemaName, h.SchemaName)
	}

	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.ScopeBindLatency)
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		s.count("error")
		return fmt.Errorf("failed to acquire connection: %w", err)
	}

	bind := fmt.Sprintf("SET search_path TO %s, public", pq.QuoteIdentifier(h.SchemaName))
	if _, err := conn.ExecContext(ctx, bind); err != nil {
		conn.Close()
		s.count("error")
		return fmt.Errorf("failed to bind schema %s: %w", h.SchemaName, err)
	}
	if timer != nil {
		timer.ObserveDuration()
	}
	s.count("ok")
	if s.metrics != nil {
		s.metrics.ScopeActive.Inc()
		defer s.metrics.ScopeActive.Dec()
	}

	defer func() {
		resetCtx, cancel := context.WithTimeout(context.Background(), resetTimeout)
		defer cancel()
		if _, rerr := conn.ExecContext(resetCtx, "SET search_path TO public"); rerr != nil {
			// Never hand a connection with a tenant path back to the pool.
			if s.metrics != nil {
				s.metrics.ScopeResetFailures.Inc()
			}
			s.logger.Error().
				Err(rerr).
				Str("schema", h.SchemaName).
				Msg("failed to reset search_path, discarding connection")
			_ = conn.Raw(func(driverConn interface{}) error { return driver.ErrBadConn })
		}
		conn.Close()
	}()

	if mark {
		ctx = markScoped(ctx, h.ID)
	}
	return fn(ctx, conn)
}

func (s *Scope) count(status string) {
	if s.metrics != nil {
		s.metrics.ScopeAcquisitions.WithLabelValues(status).Inc()
	}
}

// ValidSchemaName reports whether name matches the provisioning
// pattern. Exposed for the provisioning service.
func ValidSchemaName(name string) bool {
	return schemaNamePattern.MatchString(name)
}
