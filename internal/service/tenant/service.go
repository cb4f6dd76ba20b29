package tenant

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/authz"
	"github.com/vs-ai-ds/hms-backend/internal/email"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/service/audit"
	"github.com/vs-ai-ds/hms-backend/pkg/security"
)

const (
	verifyTokenExpiry  = 48 * time.Hour
	schemaNameAttempts = 5

	defaultMaxUsers    = 50
	defaultMaxPatients = 5000
)

var (
	ErrSlugTaken       = errors.New("a hospital with this name is already registered")
	ErrAdminEmailTaken = errors.New("admin email is already registered")
	ErrWrongStatus     = errors.New("tenant is not in the required status for this change")
)

// Invalidator drops cached tenant snapshots after a lifecycle change.
// Satisfied by the tenant resolver.
type Invalidator interface {
	Invalidate(tenantID uuid.UUID)
}

// Service owns tenant registration, verification and lifecycle. All
// status mutations are compare-and-set against the expected current
// status so two concurrent changes cannot both win.
type Service struct {
	tenantRepo   repository.TenantRepository
	userRepo     repository.UserRepository
	tokenRepo    repository.TokenRepository
	provisioner  repository.SchemaProvisioner
	outboxRepo   repository.OutboxRepository
	emailSvc     email.Service
	auditor      *audit.Service
	invalidator  Invalidator
	hasher       security.PasswordHasher
	logger       zerolog.Logger
	autoActivate bool
}

func NewService(
	tenantRepo repository.TenantRepository,
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	provisioner repository.SchemaProvisioner,
	outboxRepo repository.OutboxRepository,
	emailSvc email.Service,
	auditor *audit.Service,
	invalidator Invalidator,
	logger zerolog.Logger,
	autoActivate bool,
) *Service {
	return &Service{
		tenantRepo:   tenantRepo,
		userRepo:     userRepo,
		tokenRepo:    tokenRepo,
		provisioner:  provisioner,
		outboxRepo:   outboxRepo,
		emailSvc:     emailSvc,
		auditor:      auditor,
		invalidator:  invalidator,
		hasher:       security.NewBcryptHasher(12),
		logger:       logger,
		autoActivate: autoActivate,
	}
}

// Register creates a PENDING tenant with its admin user and sends the
// verification email. The schema name is allocated here and never
// changes; the schema itself is not built until activation.
func (s *Service) Register(ctx context.Context, req *model.CreateTenantRequest) (*model.Tenant, error) {
	slug := Slugify(req.Name)
	if _, err := s.tenantRepo.GetBySlug(ctx, slug); err == nil {
		return nil, ErrSlugTaken
	} else if !errors.Is(err, model.ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}

	if _, err := s.userRepo.GetByEmail(ctx, req.AdminEmail); err == nil {
		return nil, ErrAdminEmailTaken
	}

	hash, err := s.hasher.Hash(req.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	var t *model.Tenant
	for attempt := 0; attempt < schemaNameAttempts; attempt++ {
		t = &model.Tenant{
			Base:         model.Base{ID: uuid.New()},
			Name:         req.Name,
			Slug:         slug,
			SchemaName:   generateSchemaName(),
			Status:       model.TenantStatusPending,
			ContactEmail: req.ContactEmail,
			ContactPhone: req.ContactPhone,
			Address:      req.Address,
			MaxUsers:     defaultMaxUsers,
			MaxPatients:  defaultMaxPatients,
		}
		err = s.tenantRepo.Create(ctx, t)
		if err == nil {
			break
		}
		if !errors.Is(err, model.ErrSchemaNameTaken) {
			return nil, err
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to allocate schema name: %w", err)
	}

	admin := &model.User{
		Base:          model.Base{ID: uuid.New()},
		TenantID:      &t.ID,
		Email:         strings.ToLower(req.AdminEmail),
		Name:          req.AdminName,
		PasswordHash:  hash,
		Status:        model.UserStatusActive,
		EmailVerified: false,
	}
	if err := s.userRepo.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}

	token, err := security.GenerateVerificationToken()
	if err != nil {
		return nil, err
	}
	vt := &model.VerificationToken{
		ID:        uuid.New(),
		Token:     token,
		Purpose:   model.TokenPurposeTenantVerify,
		UserID:    &admin.ID,
		TenantID:  &t.ID,
		ExpiresAt: time.Now().UTC().Add(verifyTokenExpiry),
	}
	if err := s.tokenRepo.Create(ctx, vt); err != nil {
		return nil, fmt.Errorf("failed to store verification token: %w", err)
	}

	if err := s.emailSvc.SendVerification(ctx, t.ContactEmail, token); err != nil {
		s.logger.Warn().Err(err).Str("tenant", t.Slug).Msg("failed to send verification email")
	}

	s.emit(ctx, model.EventTenantRegistered, t)
	s.auditor.Log(ctx, &admin.ID, &t.ID, model.AuditActionCreate, model.AuditEntityTenant, t.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"name": t.Name, "slug": t.Slug},
	})

	return t, nil
}

// Verify consumes a verification token and moves the tenant PENDING ->
// VERIFIED. When auto-activation is on the tenant continues straight
// to ACTIVE, the way self-service onboarding runs in production.
func (s *Service) Verify(ctx context.Context, token string) (*model.Tenant, error) {
	vt, err := s.tokenRepo.Consume(ctx, token, model.TokenPurposeTenantVerify, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if vt.TenantID == nil {
		return nil, model.ErrInvalidToken
	}

	t, err := s.tenantRepo.Get(ctx, *vt.TenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ok, err := s.tenantRepo.UpdateStatus(ctx, t.ID, model.TenantStatusPending, model.TenantStatusVerified, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Already past PENDING through another path. The token was
		// still unconsumed, so finish the remaining steps.
		if t, err = s.tenantRepo.Get(ctx, t.ID); err != nil {
			return nil, err
		}
		if t.Status == model.TenantStatusPending {
			return nil, ErrWrongStatus
		}
	}
	s.invalidator.Invalidate(t.ID)

	if vt.UserID != nil {
		if err := s.userRepo.UpdateEmailVerified(ctx, *vt.UserID, true); err != nil {
			s.logger.Warn().Err(err).Str("user_id", vt.UserID.String()).Msg("failed to mark email verified")
		}
	}

	s.emit(ctx, model.EventTenantVerified, t)
	s.auditor.Log(ctx, vt.UserID, &t.ID, model.AuditActionUpdate, model.AuditEntityTenant, t.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"status": model.TenantStatusVerified},
	})

	if s.autoActivate {
		return s.Activate(ctx, t.ID, vt.UserID)
	}
	return s.tenantRepo.Get(ctx, t.ID)
}

// Activate provisions the tenant schema, seeds the system roles,
// grants HOSPITAL_ADMIN to the onboarding users and flips the tenant
// VERIFIED -> ACTIVE. Safe to retry: provisioning and seeding are
// idempotent and the status flip is a compare-and-set.
func (s *Service) Activate(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID) (*model.Tenant, error) {
	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case model.TenantStatusVerified:
	case model.TenantStatusActive:
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongStatus, t.Slug, t.Status)
	}

	if err := s.provisioner.CreateTenantSchema(ctx, t.SchemaName); err != nil {
		return nil, fmt.Errorf("failed to provision tenant schema: %w", err)
	}
	if err := s.provisioner.SeedTenantRoles(ctx, t.SchemaName, authz.RoleTemplates()); err != nil {
		return nil, fmt.Errorf("failed to seed tenant roles: %w", err)
	}

	// Every user existing before activation is an onboarding admin.
	admins, err := s.userRepo.List(ctx, t.ID, &model.UserFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list onboarding users: %w", err)
	}
	for _, u := range admins {
		if err := s.provisioner.GrantSeededRole(ctx, t.SchemaName, model.RoleHospitalAdmin, u.ID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	ok, err := s.tenantRepo.UpdateStatus(ctx, t.ID, model.TenantStatusVerified, model.TenantStatusActive, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWrongStatus
	}
	s.invalidator.Invalidate(t.ID)

	s.emit(ctx, model.EventTenantActivated, t)
	s.auditor.Log(ctx, actorID, &t.ID, model.AuditActionUpdate, model.AuditEntityTenant, t.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"status": model.TenantStatusActive},
	})

	return s.tenantRepo.Get(ctx, t.ID)
}

// Suspend blocks an ACTIVE tenant from serving traffic. Sessions fail
// at resolution from the next request on.
func (s *Service) Suspend(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID, reason string) (*model.Tenant, error) {
	now := time.Now().UTC()
	ok, err := s.tenantRepo.UpdateStatus(ctx, tenantID, model.TenantStatusActive, model.TenantStatusSuspended, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWrongStatus
	}
	s.invalidator.Invalidate(tenantID)

	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventTenantSuspended, t)
	s.auditor.Log(ctx, actorID, &tenantID, model.AuditActionUpdate, model.AuditEntityTenant, tenantID, &audit.LogOptions{
		Changes:  map[string]interface{}{"status": model.TenantStatusSuspended},
		Metadata: map[string]interface{}{"reason": reason},
	})
	return t, nil
}

// Reactivate returns a SUSPENDED tenant to service. The schema was
// never touched, so this is a status flip only.
func (s *Service) Reactivate(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID) (*model.Tenant, error) {
	now := time.Now().UTC()
	ok, err := s.tenantRepo.UpdateStatus(ctx, tenantID, model.TenantStatusSuspended, model.TenantStatusActive, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWrongStatus
	}
	s.invalidator.Invalidate(tenantID)

	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventTenantReactivated, t)
	s.auditor.Log(ctx, actorID, &tenantID, model.AuditActionUpdate, model.AuditEntityTenant, tenantID, &audit.LogOptions{
		Changes: map[string]interface{}{"status": model.TenantStatusActive},
	})
	return t, nil
}

// Deactivate retires a tenant permanently. Works from ACTIVE or
// SUSPENDED; the schema and its data stay in place for retention.
func (s *Service) Deactivate(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID) (*model.Tenant, error) {
	now := time.Now().UTC()
	ok, err := s.tenantRepo.UpdateStatus(ctx, tenantID, model.TenantStatusActive, model.TenantStatusInactive, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		ok, err = s.tenantRepo.UpdateStatus(ctx, tenantID, model.TenantStatusSuspended, model.TenantStatusInactive, now)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, ErrWrongStatus
	}
	s.invalidator.Invalidate(tenantID)

	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventTenantDeactivated, t)
	s.auditor.Log(ctx, actorID, &tenantID, model.AuditActionUpdate, model.AuditEntityTenant, tenantID, &audit.LogOptions{
		Changes: map[string]interface{}{"status": model.TenantStatusInactive},
	})
	return t, nil
}

func (s *Service) Get(ctx context.Context, tenantID uuid.UUID) (*model.Tenant, error) {
	return s.tenantRepo.Get(ctx, tenantID)
}

func (s *Service) List(ctx context.Context, filter *model.TenantListFilter) ([]*model.Tenant, error) {
	return s.tenantRepo.List(ctx, filter)
}

// Update changes contact details. Lifecycle fields go through the
// dedicated transitions, never through here.
func (s *Service) Update(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID, req *model.UpdateTenantRequest) (*model.Tenant, error) {
	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.ContactEmail != nil {
		t.ContactEmail = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		t.ContactPhone = *req.ContactPhone
	}
	if req.Address != nil {
		t.Address = *req.Address
	}

	if err := s.tenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.invalidator.Invalidate(tenantID)

	s.auditor.Log(ctx, actorID, &tenantID, model.AuditActionUpdate, model.AuditEntityTenant, tenantID, &audit.LogOptions{
		Changes: req,
	})
	return t, nil
}

// UpdateLimits sets the tenant's resource ceilings.
func (s *Service) UpdateLimits(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID, req *model.UpdateTenantLimitsRequest) (*model.Tenant, error) {
	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if req.MaxUsers != nil {
		t.MaxUsers = *req.MaxUsers
	}
	if req.MaxPatients != nil {
		t.MaxPatients = *req.MaxPatients
	}

	if err := s.tenantRepo.UpdateLimits(ctx, t.ID, t.MaxUsers, t.MaxPatients); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, actorID, &tenantID, model.AuditActionUpdate, model.AuditEntityTenant, tenantID, &audit.LogOptions{
		Changes: map[string]interface{}{"max_users": t.MaxUsers, "max_patients": t.MaxPatients},
	})
	return t, nil
}

func (s *Service) emit(ctx context.Context, eventType string, t *model.Tenant) {
	payload, err := json.Marshal(map[string]interface{}{
		"tenant_id": t.ID,
		"name":      t.Name,
		"slug":      t.Slug,
		"email":     t.ContactEmail,
	})
	if err != nil {
		return
	}
	event := &model.OutboxEvent{
		ID:        uuid.New(),
		TenantID:  &t.ID,
		EventType: eventType,
		Payload:   payload,
	}
	if err := s.outboxRepo.Create(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to write outbox event")
	}
}

// generateSchemaName allocates tenant_<8 hex chars>. Collisions are
// caught by the unique constraint and retried by the caller.
func generateSchemaName() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in real trouble.
		panic(fmt.Sprintf("schema name generation: %v", err))
	}
	return "tenant_" + hex.EncodeToString(buf)
}

// Slugify lowercases the name and collapses runs of non-alphanumerics
// into single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
