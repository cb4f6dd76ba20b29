package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/email"
	"github.com/vs-ai-ds/hms-backend/internal/model"
	"github.com/vs-ai-ds/hms-backend/internal/repository"
	"github.com/vs-ai-ds/hms-backend/internal/service/audit"
	"github.com/vs-ai-ds/hms-backend/pkg/auth"
	"github.com/vs-ai-ds/hms-backend/pkg/security"
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
	bcryptCost       = 12
	resetTokenExpiry = time.Hour
)

type Service struct {
	userRepo  repository.UserRepository
	tokenRepo repository.TokenRepository
	jwtSvc    auth.JWTService
	emailSvc  email.Service
	hasher    security.PasswordHasher
	auditor   *audit.Service
	logger    zerolog.Logger
}

func NewService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	jwtSvc auth.JWTService,
	emailSvc email.Service,
	auditor *audit.Service,
	logger zerolog.Logger,
) *Service {
	return &Service{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		jwtSvc:    jwtSvc,
		emailSvc:  emailSvc,
		hasher:    security.NewBcryptHasher(bcryptCost),
		auditor:   auditor,
		logger:    logger,
	}
}

// Login verifies credentials and issues a token pair. Failed attempts
// count toward a lockout; the lockout clears itself after its window.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, model.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, model.ErrAccountLocked
	}

	if user.Status != model.UserStatusActive {
		return nil, model.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		user.FailedLoginAttempts++
		if user.FailedLoginAttempts >= maxLoginAttempts {
			until := now.Add(lockoutDuration)
			user.LockedUntil = &until
			user.FailedLoginAttempts = 0
		}
		if err := s.userRepo.UpdateLoginState(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to record login attempt: %w", err)
		}
		return nil, model.ErrInvalidCredentials
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	if err := s.userRepo.UpdateLoginState(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	tokens, err := s.generateTokens(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	s.auditor.Log(ctx, &user.ID, user.TenantID, model.AuditActionLogin, "auth", user.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"email": user.Email},
	})

	return tokens, nil
}

// ValidateToken parses an access token and returns its claims.
func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	return s.jwtSvc.ValidateToken(token)
}

// RefreshToken exchanges a refresh token for a new pair. The user row
// is re-read so deactivation and lockout take effect at refresh time.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, model.ErrInvalidToken
	}

	user, err := s.userRepo.Get(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	if user.Status != model.UserStatusActive {
		return nil, model.ErrInvalidCredentials
	}

	tokens, err := s.generateTokens(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return tokens, nil
}

// ChangePassword verifies the current password before setting the new
// one. Sessions already issued stay valid until they expire.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) error {
	user, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, current); err != nil {
		return model.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = hash
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.auditor.Log(ctx, &user.ID, user.TenantID, model.AuditActionUpdate, "auth", user.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"change": "password"},
	})

	return nil
}

// RequestPasswordReset issues a single-use reset token and emails it.
// The result is identical whether or not the email exists, so callers
// cannot probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	user, err := s.userRepo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil
	}
	if user.Status != model.UserStatusActive {
		return nil
	}

	token, err := security.GenerateVerificationToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	vt := &model.VerificationToken{
		ID:        uuid.New(),
		Token:     token,
		Purpose:   model.TokenPurposePasswordReset,
		UserID:    &user.ID,
		TenantID:  user.TenantID,
		ExpiresAt: time.Now().UTC().Add(resetTokenExpiry),
	}
	if err := s.tokenRepo.Create(ctx, vt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.emailSvc.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send password reset email")
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	vt, err := s.tokenRepo.Consume(ctx, token, model.TokenPurposePasswordReset, time.Now().UTC())
	if err != nil {
		return err
	}
	if vt.UserID == nil {
		return model.ErrInvalidToken
	}

	user, err := s.userRepo.Get(ctx, *vt.UserID)
	if err != nil {
		return fmt.Errorf("user not found: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.auditor.Log(ctx, &user.ID, user.TenantID, model.AuditActionUpdate, "auth", user.ID, &audit.LogOptions{
		Metadata: map[string]interface{}{"change": "password_reset"},
	})
	return nil
}

// VerifyEmail consumes an email verification token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	vt, err := s.tokenRepo.Consume(ctx, token, model.TokenPurposeEmailVerify, time.Now().UTC())
	if err != nil {
		return err
	}
	if vt.UserID == nil {
		return model.ErrInvalidToken
	}
	return s.userRepo.UpdateEmailVerified(ctx, *vt.UserID, true)
}

// GetUser loads the principal for middleware that needs more than the
// token claims.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.userRepo.Get(ctx, id)
}

func (s *Service) generateTokens(user *model.User) (*model.TokenResponse, error) {
	accessToken, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtSvc.GenerateRefreshToken(user)
	if err != nil {
		return nil, err
	}
	return &model.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtSvc.AccessTTL() / time.Second),
	}, nil
}
