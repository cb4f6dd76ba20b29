package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/repository"
)

// JanitorConfig sets retention windows for the periodic prune.
type JanitorConfig struct {
	Interval        time.Duration
	AuditRetention  time.Duration
	OutboxRetention time.Duration
}

func (c *JanitorConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = 365 * 24 * time.Hour
	}
	if c.OutboxRetention <= 0 {
		c.OutboxRetention = 7 * 24 * time.Hour
	}
}

// Janitor prunes aged rows: audit entries past retention, consumed
// and expired verification tokens, processed outbox events.
type Janitor struct {
	audits repository.AuditRepository
	tokens repository.TokenRepository
	outbox repository.OutboxRepository
	cfg    JanitorConfig
	logger zerolog.Logger
}

func NewJanitor(
	audits repository.AuditRepository,
	tokens repository.TokenRepository,
	outbox repository.OutboxRepository,
	cfg JanitorConfig,
	logger zerolog.Logger,
) *Janitor {
	cfg.defaults()
	return &Janitor{audits: audits, tokens: tokens, outbox: outbox, cfg: cfg, logger: logger}
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info().Dur("interval", j.cfg.Interval).Msg("janitor started")

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("janitor stopping")
			return
		case <-ticker.C:
			j.prune(ctx)
		}
	}
}

func (j *Janitor) prune(ctx context.Context) {
	now := time.Now().UTC()

	if n, err := j.audits.DeleteBefore(ctx, now.Add(-j.cfg.AuditRetention)); err != nil {
		j.logger.Error().Err(err).Msg("audit prune failed")
	} else if n > 0 {
		j.logger.Info().Int64("deleted", n).Msg("audit entries pruned")
	}

	if n, err := j.tokens.DeleteExpired(ctx, now); err != nil {
		j.logger.Error().Err(err).Msg("token prune failed")
	} else if n > 0 {
		j.logger.Info().Int64("deleted", n).Msg("verification tokens pruned")
	}

	if n, err := j.outbox.DeleteProcessedBefore(ctx, now.Add(-j.cfg.OutboxRetention)); err != nil {
		j.logger.Error().Err(err).Msg("outbox prune failed")
	} else if n > 0 {
		j.logger.Info().Int64("deleted", n).Msg("processed outbox events pruned")
	}
}

// ShareExpirer sweeps ACTIVE share grants past expiry. Redemption
// also expires lazily; the sweep keeps listings honest for grants
// nobody tries to redeem.
type ShareExpirer struct {
	shares   repository.ShareRepository
	interval time.Duration
	logger   zerolog.Logger
}

func NewShareExpirer(shares repository.ShareRepository, interval time.Duration, logger zerolog.Logger) *ShareExpirer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ShareExpirer{shares: shares, interval: interval, logger: logger}
}

func (w *ShareExpirer) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("share expirer started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("share expirer stopping")
			return
		case <-ticker.C:
			n, err := w.shares.ExpireStale(ctx, time.Now().UTC())
			if err != nil {
				w.logger.Error().Err(err).Msg("share expiry sweep failed")
				continue
			}
			if n > 0 {
				w.logger.Info().Int64("expired", n).Msg("share grants expired")
			}
		}
	}
}
