package sharing

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/service/audit"
	"github.com/vs-ai-ds/hms-backend/internal/tenant"
)

const tokenBytes = 48

var (
	// ErrSelfShare rejects sharing a patient with the issuing tenant.
	ErrSelfShare = errors.New("cannot share a patient with the same tenant")

	// ErrTargetNotActive rejects grants aimed at tenants that cannot
	// serve traffic.
	ErrTargetNotActive = errors.New("target tenant is not active")
)

// Access describes who redeemed a token and from where, for the
// access log.
type Access struct {
	AccessedBy *uuid.UUID
	IPAddress  string
	UserAgent  string
}

// Redemption is a successfully validated token: the grant, a context
// narrowed to the shared patient, and the source tenant handle the
// scoped read ran against.
type Redemption struct {
	Grant   *model.ShareGrant
	Tenant  *tenant.Handle
	Context *tenant.Context
	Record  *model.SharedRecord
}

// Service issues, redeems and revokes cross-tenant share grants.
// Grants live in the public schema; the redemption read is the one
// sanctioned cross-namespace access and every attempt lands in the
// access log, granted or not.
type Service struct {
	scope    *tenant.Scope
	stores   repository.StoreFactory
	shares   repository.ShareRepository
	resolver *tenant.Resolver
	outbox   repository.OutboxRepository
	auditor  *audit.Service
	logger   zerolog.Logger
	ttl      time.Duration
}

func NewService(
	scope *tenant.Scope,
	stores repository.StoreFactory,
	shares repository.ShareRepository,
	resolver *tenant.Resolver,
	outbox repository.OutboxRepository,
	auditor *audit.Service,
	logger zerolog.Logger,
	ttl time.Duration,
) *Service {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Service{
		scope:    scope,
		stores:   stores,
		shares:   shares,
		resolver: resolver,
		outbox:   outbox,
		auditor:  auditor,
		logger:   logger,
		ttl:      ttl,
	}
}

// Issue creates a grant for one patient. The token is returned once
// and never again; only its row survives.
func (s *Service) Issue(ctx context.Context, h *tenant.Handle, actorID uuid.UUID, req *model.CreateShareRequest) (*model.ShareGrantResponse, error) {
	if req.TargetTenantID != nil {
		if *req.TargetTenantID == h.ID {
			return nil, ErrSelfShare
		}
		target, err := s.resolver.ResolveAny(ctx, *req.TargetTenantID)
		if err != nil {
			return nil, err
		}
		if !target.Status.Operational() {
			return nil, ErrTargetNotActive
		}
	}

	err := s.scope.Run(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		_, err := s.stores(conn).Patients.Get(ctx, req.PatientID)
		return err
	})
	if err != nil {
		return nil, err
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ttl := s.ttl
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	grant := &model.ShareGrant{
		Base:           model.Base{ID: uuid.New()},
		SourceTenantID: h.ID,
		TargetTenantID: req.TargetTenantID,
		PatientID:      req.PatientID,
		Token:          token,
		Mode:           req.Mode,
		Status:         model.ShareStatusActive,
		ExpiresAt:      now.Add(ttl),
		CreatedBy:      actorID,
		Purpose:        strings.TrimSpace(req.Purpose),
	}
	if err := s.shares.Create(ctx, grant); err != nil {
		return nil, err
	}

	s.emit(ctx, grant, model.EventShareIssued)
	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionShare, model.AuditEntityShareGrant, grant.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{
			"patient_id": grant.PatientID,
			"mode":       grant.Mode,
			"expires_at": grant.ExpiresAt,
		},
	})

	return &model.ShareGrantResponse{ShareGrant: *grant, Token: token}, nil
}

// Redeem validates a token and reads the shared record from the
// source tenant. A grant found past its expiry is flipped to EXPIRED
// on the spot. The returned context carries the grant scope, so the
// evaluator narrows every later action to this one patient.
func (s *Service) Redeem(ctx context.Context, token string, access *Access) (*Redemption, error) {
	grant, err := s.shares.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	switch {
	case grant.Status == model.ShareStatusRevoked:
		s.logAccess(ctx, grant.ID, access, model.ShareAccessRevoked)
		return nil, model.ErrShareRevoked
	case grant.Status == model.ShareStatusExpired:
		s.logAccess(ctx, grant.ID, access, model.ShareAccessExpired)
		return nil, model.ErrShareExpired
	case grant.ExpiredAt(now):
		if _, err := s.shares.MarkExpired(ctx, grant.ID); err != nil {
			return nil, err
		}
		s.logAccess(ctx, grant.ID, access, model.ShareAccessExpired)
		return nil, model.ErrShareExpired
	}

	h, err := s.resolver.ResolveAny(ctx, grant.SourceTenantID)
	if err != nil {
		return nil, err
	}

	record := &model.SharedRecord{}
	err = s.scope.RunShared(ctx, h, func(ctx context.Context, conn *sqlx.Conn) error {
		st := s.stores(conn)

		var err error
		record.Patient, err = st.Patients.Summary(ctx, grant.PatientID)
		if err != nil {
			return err
		}

		pid := grant.PatientID
		page := model.Pagination{PageSize: 100}
		record.Appointments, err = st.Appointments.List(ctx, &model.AppointmentFilter{PatientID: &pid, Pagination: page})
		if err != nil {
			return err
		}
		record.Prescriptions, err = st.Prescriptions.List(ctx, &model.PrescriptionFilter{PatientID: &pid, Pagination: page})
		if err != nil {
			return err
		}
		for _, p := range record.Prescriptions {
			p.Items, err = st.Prescriptions.GetItems(ctx, p.ID)
			if err != nil {
				return err
			}
		}
		record.Admissions, err = st.Admissions.List(ctx, &model.AdmissionFilter{PatientID: &pid, Pagination: page})
		return err
	})
	if err != nil {
		s.logAccess(ctx, grant.ID, access, model.ShareAccessDenied)
		return nil, err
	}

	s.logAccess(ctx, grant.ID, access, model.ShareAccessGranted)
	s.emit(ctx, grant, model.EventShareRedeemed)
	s.auditor.Log(ctx, access.AccessedBy, &grant.SourceTenantID, model.AuditActionRedeem, model.AuditEntityShareGrant, grant.ID, &audit.LogOptions{
		IPAddress: access.IPAddress,
		UserAgent: access.UserAgent,
	})

	tc := &tenant.Context{
		Tenant: *h,
		Grant: &tenant.GrantScope{
			GrantID:   grant.ID,
			PatientID: grant.PatientID,
			Mode:      grant.Mode,
			ExpiresAt: grant.ExpiresAt,
		},
	}
	if access.AccessedBy != nil {
		tc.UserID = *access.AccessedBy
	}

	return &Redemption{Grant: grant, Tenant: h, Context: tc, Record: record}, nil
}

// Revoke kills a grant immediately. There is no way back; a new
// grant must be issued instead.
func (s *Service) Revoke(ctx context.Context, h *tenant.Handle, actorID, grantID uuid.UUID) (*model.ShareGrant, error) {
	grant, err := s.getOwned(ctx, h, grantID)
	if err != nil {
		return nil, err
	}

	ok, err := s.shares.Revoke(ctx, grantID, actorID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		switch grant.Status {
		case model.ShareStatusExpired:
			return nil, model.ErrShareExpired
		default:
			return nil, model.ErrShareRevoked
		}
	}

	grant, err = s.shares.Get(ctx, grantID)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, grant, model.EventShareRevoked)
	s.auditor.Log(ctx, &actorID, &h.ID, model.AuditActionRevoke, model.AuditEntityShareGrant, grantID, nil)
	return grant, nil
}

func (s *Service) Get(ctx context.Context, h *tenant.Handle, grantID uuid.UUID) (*model.ShareGrant, error) {
	return s.getOwned(ctx, h, grantID)
}

func (s *Service) List(ctx context.Context, h *tenant.Handle, filter *model.ShareFilter) ([]*model.ShareGrant, error) {
	return s.shares.ListBySource(ctx, h.ID, filter)
}

// AccessLog returns every redemption attempt against one grant.
func (s *Service) AccessLog(ctx context.Context, h *tenant.Handle, grantID uuid.UUID) ([]*model.ShareAccessLog, error) {
	if _, err := s.getOwned(ctx, h, grantID); err != nil {
		return nil, err
	}
	return s.shares.ListAccess(ctx, grantID)
}

// ExpireStale sweeps ACTIVE grants past their expiry. Run
// periodically by the worker; redemption handles the race for grants
// the sweep has not reached yet.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	return s.shares.ExpireStale(ctx, time.Now().UTC())
}

// getOwned loads a grant and hides grants belonging to other tenants
// behind not-found.
func (s *Service) getOwned(ctx context.Context, h *tenant.Handle, grantID uuid.UUID) (*model.ShareGrant, error) {
	grant, err := s.shares.Get(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if grant.SourceTenantID != h.ID {
		return nil, model.ErrShareNotFound
	}
	return grant, nil
}

func (s *Service) logAccess(ctx context.Context, grantID uuid.UUID, access *Access, outcome string) {
	entry := &model.ShareAccessLog{GrantID: grantID, Outcome: outcome}
	if access != nil {
		entry.AccessedBy = access.AccessedBy
		entry.IPAddress = access.IPAddress
		entry.UserAgent = access.UserAgent
	}
	if err := s.shares.LogAccess(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("grant_id", grantID.String()).Msg("failed to record share access")
	}
}

func (s *Service) emit(ctx context.Context, grant *model.ShareGrant, eventType string) {
	payload, err := json.Marshal(map[string]interface{}{
		"grant_id":         grant.ID,
		"source_tenant_id": grant.SourceTenantID,
		"target_tenant_id": grant.TargetTenantID,
		"patient_id":       grant.PatientID,
		"mode":             grant.Mode,
		"expires_at":       grant.ExpiresAt,
	})
	if err != nil {
		return
	}
	tid := grant.SourceTenantID
	if err := s.outbox.Create(ctx, &model.OutboxEvent{
		TenantID:  &tid,
		EventType: eventType,
		Payload:   payload,
	}); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to queue share event")
	}
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
