package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/pkg/messaging"
	"github.com/vs-ai-ds/hms-backend/pkg/metrics"
)

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
}

func (c *RelayConfig) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
}

// OutboxRelay drains the outbox onto the broker. Batches are claimed
// with row locks, so relays can run on several worker instances
// without double-delivery. Events that keep failing move to the dead
// letter table instead of clogging the queue.
type OutboxRelay struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	cfg     RelayConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewOutboxRelay(repo repository.OutboxRepository, broker messaging.Broker, cfg RelayConfig, logger zerolog.Logger, m *metrics.Metrics) *OutboxRelay {
	cfg.defaults()
	return &OutboxRelay{repo: repo, broker: broker, cfg: cfg, logger: logger, metrics: m}
}

// Start polls until ctx is cancelled.
func (r *OutboxRelay) Start(ctx context.Context) {
	r.logger.Info().
		Int("batch_size", r.cfg.BatchSize).
		Dur("poll_interval", r.cfg.PollInterval).
		Msg("outbox relay started")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopping")
			return
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.logger.Error().Err(err).Msg("outbox drain failed")
			}
		}
	}
}

// drain claims one batch, publishes each event and records the
// outcome, all inside the claiming transaction.
func (r *OutboxRelay) drain(ctx context.Context) error {
	var timer *prometheus.Timer
	if r.metrics != nil {
		timer = prometheus.NewTimer(r.metrics.OutboxProcessingLatency)
		defer timer.ObserveDuration()
	}

	tx, err := r.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin relay transaction: %w", err)
	}
	defer tx.Rollback()

	events, err := r.repo.GetPendingEventsWithLock(ctx, tx, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	for _, event := range events {
		if err := r.publish(ctx, event); err != nil {
			r.fail(ctx, tx, event, err)
			continue
		}
		if r.metrics != nil {
			r.metrics.OutboxEventsProcessed.Inc()
		}
		if err := r.repo.UpdateStatusTx(ctx, tx, event.ID, model.OutboxStatusProcessed, nil, nil); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OutboxRelay) publish(ctx context.Context, event *model.OutboxEvent) error {
	env := messaging.Message{
		ID:         event.ID,
		Type:       event.EventType,
		TenantID:   event.TenantID,
		Payload:    event.Payload,
		OccurredAt: event.CreatedAt,
	}
	return r.broker.Publish(ctx, event.EventType, env)
}

func (r *OutboxRelay) fail(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent, cause error) {
	if r.metrics != nil {
		r.metrics.OutboxEventsFailed.Inc()
	}
	msg := cause.Error()

	if event.RetryCount+1 >= r.cfg.MaxAttempts {
		event.ErrorMessage = &msg
		if err := r.repo.MoveToDeadLetter(ctx, tx, event); err != nil {
			r.logger.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to dead-letter event")
		}
		r.logger.Error().
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Int("attempts", event.RetryCount+1).
			Msg("event moved to dead letter")
		return
	}

	retryAt := time.Now().UTC().Add(r.cfg.RetryDelay * time.Duration(event.RetryCount+1))
	if r.metrics != nil {
		r.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	}
	if err := r.repo.UpdateStatusTx(ctx, tx, event.ID, model.OutboxStatusFailed, &msg, &retryAt); err != nil {
		r.logger.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to record publish failure")
	}
	r.logger.Warn().
		Err(cause).
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Time("retry_at", retryAt).
		Msg("event publish failed, scheduled for retry")
}
