package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
	"github.com/vs-ai-ds/hms-backend/pkg/messaging"
)

// Config tunes delivery retries.
type Config struct {
	MaxRetries    int
	RetryDelay    time.Duration
	RetryBatch    int
	RetryInterval time.Duration
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.RetryBatch <= 0 {
		c.RetryBatch = 50
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Minute
	}
}

// Dispatcher turns platform events into notifications and delivers
// them over the configured channels. It runs in the worker, off the
// broker the outbox relay publishes to, so a slow SMTP server never
// touches a request or a workflow transition.
type Dispatcher struct {
	broker   messaging.Broker
	notifs   repository.NotificationRepository
	users    repository.UserRepository
	resolver *tenant.Resolver
	scope    *tenant.Scope
	stores   repository.StoreFactory
	senders  map[string]Sender
	logger   zerolog.Logger
	cfg      Config
}

func NewDispatcher(
	broker messaging.Broker,
	notifs repository.NotificationRepository,
	users repository.UserRepository,
	resolver *tenant.Resolver,
	scope *tenant.Scope,
	stores repository.StoreFactory,
	senders map[string]Sender,
	logger zerolog.Logger,
	cfg Config,
) *Dispatcher {
	cfg.defaults()
	return &Dispatcher{
		broker:   broker,
		notifs:   notifs,
		users:    users,
		resolver: resolver,
		scope:    scope,
		stores:   stores,
		senders:  senders,
		logger:   logger,
		cfg:      cfg,
	}
}

// Topics the dispatcher consumes. Everything else flowing through the
// broker is for other consumers.
func topics() []string {
	return []string{
		model.EventNotificationRequested,
		model.EventStockBelowReorder,
		model.EventShareIssued,
		model.EventAppointmentCreated,
	}
}

// Start subscribes to each topic and blocks until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	for _, topic := range topics() {
		ch, err := d.broker.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		go d.consume(ctx, topic, ch)
	}

	d.logger.Info().Msg("notification dispatcher started")

	ticker := time.NewTicker(d.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("notification dispatcher stopping")
			return nil
		case <-ticker.C:
			d.retryDue(ctx)
		}
	}
}

func (d *Dispatcher) consume(ctx context.Context, topic string, ch <-chan []byte) {
	for raw := range ch {
		var env messaging.Message
		if err := json.Unmarshal(raw, &env); err != nil {
			d.logger.Error().Err(err).Str("topic", topic).Msg("failed to decode event envelope")
			continue
		}
		if err := d.route(ctx, &env); err != nil {
			d.logger.Error().
				Err(err).
				Str("topic", topic).
				Str("event_id", env.ID.String()).
				Msg("failed to dispatch event")
		}
	}
}

func (d *Dispatcher) route(ctx context.Context, env *messaging.Message) error {
	switch env.Type {
	case model.EventNotificationRequested:
		return d.fromRequest(ctx, env)
	case model.EventStockBelowReorder:
		return d.lowStock(ctx, env)
	case model.EventShareIssued:
		return d.shareIssued(ctx, env)
	case model.EventAppointmentCreated:
		return d.appointmentCreated(ctx, env)
	}
	return nil
}

// fromRequest delivers a pre-addressed notification. The emitting
// service already resolved channel and recipient.
func (d *Dispatcher) fromRequest(ctx context.Context, env *messaging.Message) error {
	var req model.NotificationRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return fmt.Errorf("failed to decode notification request: %w", err)
	}
	return d.deliver(ctx, &model.Notification{
		TenantID:  req.TenantID,
		UserID:    req.UserID,
		Channel:   req.Channel,
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Content:   req.Content,
	})
}

// lowStock mails the tenant's admins and pharmacists.
func (d *Dispatcher) lowStock(ctx context.Context, env *messaging.Message) error {
	if env.TenantID == nil {
		return nil
	}
	var p struct {
		Name         string `json:"name"`
		SKU          string `json:"sku"`
		CurrentStock int    `json:"current_stock"`
		ReorderLevel int    `json:"reorder_level"`
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("failed to decode stock event: %w", err)
	}

	recipients, err := d.roleEmails(ctx, *env.TenantID, model.RoleHospitalAdmin, model.RolePharmacist)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Low stock alert - %s", p.Name)
	content := fmt.Sprintf("Stock item %s (%s) is at %d units, at or under its reorder level of %d.",
		p.Name, p.SKU, p.CurrentStock, p.ReorderLevel)

	for _, r := range recipients {
		n := &model.Notification{
			TenantID:  env.TenantID,
			UserID:    r.userID,
			Channel:   model.NotificationChannelEmail,
			Recipient: r.email,
			Subject:   subject,
			Content:   content,
		}
		if err := d.deliver(ctx, n); err != nil {
			d.logger.Error().Err(err).Str("recipient", r.email).Msg("low stock notification failed")
		}
	}
	return nil
}

// shareIssued tells the receiving hospital's admins a record was
// shared with them.
func (d *Dispatcher) shareIssued(ctx context.Context, env *messaging.Message) error {
	var p struct {
		GrantID        uuid.UUID  `json:"grant_id"`
		SourceTenantID uuid.UUID  `json:"source_tenant_id"`
		TargetTenantID *uuid.UUID `json:"target_tenant_id"`
		ExpiresAt      time.Time  `json:"expires_at"`
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("failed to decode share event: %w", err)
	}
	if p.TargetTenantID == nil {
		return nil
	}

	source, err := d.resolver.ResolveAny(ctx, p.SourceTenantID)
	if err != nil {
		return err
	}
	recipients, err := d.roleEmails(ctx, *p.TargetTenantID, model.RoleHospitalAdmin)
	if err != nil {
		return err
	}

	subject := "Patient record shared with your hospital"
	content := fmt.Sprintf("%s shared a patient record with your hospital. The share expires at %s.",
		source.Name, p.ExpiresAt.Format(time.RFC1123))

	for _, r := range recipients {
		n := &model.Notification{
			TenantID:  p.TargetTenantID,
			UserID:    r.userID,
			Channel:   model.NotificationChannelEmail,
			Recipient: r.email,
			Subject:   subject,
			Content:   content,
		}
		if err := d.deliver(ctx, n); err != nil {
			d.logger.Error().Err(err).Str("recipient", r.email).Msg("share notification failed")
		}
	}
	return nil
}

// appointmentCreated sends the patient their confirmation, when the
// record carries an email address.
func (d *Dispatcher) appointmentCreated(ctx context.Context, env *messaging.Message) error {
	if env.TenantID == nil {
		return nil
	}
	var p struct {
		AppointmentID uuid.UUID `json:"appointment_id"`
		PatientID     uuid.UUID `json:"patient_id"`
		ScheduledAt   time.Time `json:"scheduled_at"`
	}
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("failed to decode appointment event: %w", err)
	}

	h, err := d.resolver.ResolveAny(ctx, *env.TenantID)
	if err != nil {
		return err
	}

	var patient *model.Patient
	err = d.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		var err error
		patient, err = d.stores(conn).Patients.Get(ctx, p.PatientID)
		return err
	})
	if err != nil {
		return err
	}
	if patient.Email == "" {
		return nil
	}

	n := &model.Notification{
		TenantID:  env.TenantID,
		Channel:   model.NotificationChannelEmail,
		Recipient: patient.Email,
		Subject:   fmt.Sprintf("Appointment confirmed at %s", h.Name),
		Content: fmt.Sprintf("Dear %s, your appointment at %s is confirmed for %s.",
			patient.FirstName, h.Name, p.ScheduledAt.Format(time.RFC1123)),
	}
	return d.deliver(ctx, n)
}

type recipient struct {
	userID *uuid.UUID
	email  string
}

// roleEmails resolves active tenant users holding any of the named
// roles. Role rows live in the tenant schema, so the check runs under
// a scope bound to it.
func (d *Dispatcher) roleEmails(ctx context.Context, tenantID uuid.UUID, roles ...string) ([]recipient, error) {
	h, err := d.resolver.ResolveAny(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	users, err := d.users.List(ctx, tenantID, &model.UserFilter{
		BaseFilter: model.BaseFilter{Status: model.UserStatusActive},
		Pagination: model.Pagination{PageSize: 100},
	})
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		wanted[r] = struct{}{}
	}

	var out []recipient
	err = d.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		st := d.stores(conn)
		for _, u := range users {
			if u.Email == "" {
				continue
			}
			held, err := st.RBAC.ListUserRoles(ctx, u.ID)
			if err != nil {
				return err
			}
			for _, role := range held {
				if _, ok := wanted[role.Name]; ok {
					id := u.ID
					out = append(out, recipient{userID: &id, email: u.Email})
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// deliver records the notification, attempts the send and updates the
// delivery state. Failures schedule a retry with linear backoff until
// the attempt budget runs out.
func (d *Dispatcher) deliver(ctx context.Context, n *model.Notification) error {
	sender, ok := d.senders[n.Channel]
	if !ok {
		return fmt.Errorf("unsupported notification channel %q", n.Channel)
	}

	n.Status = model.NotificationStatusPending
	if err := d.notifs.Create(ctx, n); err != nil {
		return err
	}
	return d.attempt(ctx, n, sender)
}

func (d *Dispatcher) attempt(ctx context.Context, n *model.Notification, sender Sender) error {
	now := time.Now().UTC()
	if err := sender.Send(ctx, n); err != nil {
		n.RetryCount++
		n.LastError = err.Error()
		if n.RetryCount >= d.cfg.MaxRetries {
			n.Status = model.NotificationStatusFailed
			n.NextRetryAt = nil
		} else {
			n.Status = model.NotificationStatusRetrying
			at := now.Add(d.cfg.RetryDelay * time.Duration(n.RetryCount))
			n.NextRetryAt = &at
		}
		if uerr := d.notifs.Update(ctx, n); uerr != nil {
			d.logger.Error().Err(uerr).Str("notification_id", n.ID.String()).Msg("failed to record delivery failure")
		}
		return err
	}

	n.Status = model.NotificationStatusSent
	n.SentAt = &now
	n.NextRetryAt = nil
	return d.notifs.Update(ctx, n)
}

// retryDue resends notifications whose backoff elapsed.
func (d *Dispatcher) retryDue(ctx context.Context) {
	due, err := d.notifs.ListDue(ctx, time.Now().UTC(), d.cfg.RetryBatch)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to list due notifications")
		return
	}
	for _, n := range due {
		sender, ok := d.senders[n.Channel]
		if !ok {
			n.Status = model.NotificationStatusFailed
			if err := d.notifs.Update(ctx, n); err != nil {
				d.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to fail notification")
			}
			continue
		}
		if err := d.attempt(ctx, n, sender); err != nil {
			d.logger.Warn().
				Err(err).
				Str("notification_id", n.ID.String()).
				Int("retry_count", n.RetryCount).
				Msg("notification retry failed")
		}
	}
}
