package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
	"github.com/vs-ai-ds/hms-backend/internal/workflow"
)

// SweeperConfig tunes the no-show sweep.
type SweeperConfig struct {
	Threshold time.Duration
	Interval  time.Duration
	BatchSize int
}

func (c *SweeperConfig) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = 3 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
}

// NoShowSweeper marks appointments that sat SCHEDULED past the
// threshold as NO_SHOW, tenant by tenant, through the same engine
// interactive transitions use. The history rows carry the nil actor.
type NoShowSweeper struct {
	tenants repository.TenantRepository
	scope   *tenant.Scope
	stores  repository.StoreFactory
	engine  *workflow.Engine
	cfg     SweeperConfig
	logger  zerolog.Logger
}

func NewNoShowSweeper(
	tenants repository.TenantRepository,
	scope *tenant.Scope,
	stores repository.StoreFactory,
	engine *workflow.Engine,
	cfg SweeperConfig,
	logger zerolog.Logger,
) *NoShowSweeper {
	cfg.defaults()
	return &NoShowSweeper{
		tenants: tenants,
		scope:   scope,
		stores:  stores,
		engine:  engine,
		cfg:     cfg,
		logger:  logger,
	}
}

func (w *NoShowSweeper) Start(ctx context.Context) {
	w.logger.Info().
		Dur("threshold", w.cfg.Threshold).
		Dur("interval", w.cfg.Interval).
		Msg("no-show sweeper started")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("no-show sweeper stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *NoShowSweeper) sweep(ctx context.Context) {
	tenants, err := w.tenants.List(ctx, &model.TenantListFilter{
		Status:     string(model.TenantStatusActive),
		Pagination: model.Pagination{PageSize: 100},
	})
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to list tenants for no-show sweep")
		return
	}

	for _, t := range tenants {
		h := &tenant.Handle{ID: t.ID, Name: t.Name, SchemaName: t.SchemaName, Status: t.Status}
		swept, err := w.sweepTenant(ctx, h)
		if err != nil {
			w.logger.Error().Err(err).Str("tenant", t.Slug).Msg("no-show sweep failed")
			continue
		}
		if swept > 0 {
			w.logger.Info().Str("tenant", t.Slug).Int("swept", swept).Msg("stale appointments marked no-show")
		}
	}
}

// sweepTenant transitions one batch. Conflicts are skipped: an
// appointment checked in between the read and the transition belongs
// to its receptionist, not the sweeper.
func (w *NoShowSweeper) sweepTenant(ctx context.Context, h *tenant.Handle) (int, error) {
	cutoff := time.Now().UTC().Add(-w.cfg.Threshold)
	swept := 0

	err := w.scope.RunTx(ctx, h, func(ctx context.Context, tx *sqlx.Tx) error {
		st := w.stores(tx)
		stale, err := st.Appointments.ListStaleScheduled(ctx, cutoff, w.cfg.BatchSize)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, a := range stale {
			req := &workflow.Request{
				Kind:     workflow.KindAppointment,
				EntityID: a.ID,
				From:     workflow.Status(a.Status),
				To:       workflow.StatusNoShow,
				Version:  a.Version,
				ActorID:  uuid.Nil,
				Now:      now,
				Fields:   map[string]interface{}{"marked_no_show_at": now},
				Meta:     map[string]interface{}{"source": "sweeper"},
			}
			if _, err := w.engine.Transition(ctx, tx, h.ID, req); err != nil {
				if skippable(err) {
					continue
				}
				return err
			}
			swept++
		}
		return nil
	})
	return swept, err
}

func skippable(err error) bool {
	var gv *workflow.GuardViolation
	var it *workflow.InvalidTransitionError
	return errors.Is(err, workflow.ErrTransitionConflict) ||
		errors.As(err, &gv) ||
		errors.As(err, &it)
}
