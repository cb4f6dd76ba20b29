package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Config holds SMTP settings. With Enabled false the sender logs
// instead of dialing, which is the default outside production.
type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender delivers one plain-text email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSender returns an SMTP sender, or the log-only sender when
// delivery is disabled.
func NewSender(cfg Config, logger zerolog.Logger) Sender {
	if !cfg.Enabled {
		return &logSender{logger: logger}
	}
	return &smtpSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

type smtpSender struct {
	dialer *gomail.Dialer
	from   string
}

func (s *smtpSender) Send(ctx context.Context, to, subject, body string) error {
	// gomail dials synchronously without context support, so honor
	// cancellation up front.
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

type logSender struct {
	logger zerolog.Logger
}

func (s *logSender) Send(_ context.Context, to, subject, _ string) error {
	s.logger.Info().
		Str("to", to).
		Str("subject", subject).
		Msg("email delivery disabled, message dropped")
	return nil
}

// Service composes the platform's transactional emails on top of a
// Sender. Links point at the frontend, which owns the token forms.
type Service interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
	SendWelcome(ctx context.Context, to, name string) error
}

type service struct {
	sender  Sender
	baseURL string
}

func NewService(sender Sender, baseURL string) Service {
	return &service{sender: sender, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *service) SendVerification(ctx context.Context, to, token string) error {
	body := fmt.Sprintf(
		"Welcome to the hospital platform.\n\nConfirm your email to continue onboarding:\n%s/verify-email?token=%s\n\nThe link expires in 48 hours.",
		s.baseURL, token)
	return s.sender.Send(ctx, to, "Verify your email", body)
}

func (s *service) SendPasswordReset(ctx context.Context, to, token string) error {
	body := fmt.Sprintf(
		"A password reset was requested for your account.\n\nChoose a new password here:\n%s/reset-password?token=%s\n\nThe link expires in 1 hour. If you did not request this, ignore this email.",
		s.baseURL, token)
	return s.sender.Send(ctx, to, "Reset your password", body)
}

func (s *service) SendWelcome(ctx context.Context, to, name string) error {
	body := fmt.Sprintf(
		"Hello %s,\n\nYour staff account has been created. Sign in at %s to get started.",
		name, s.baseURL)
	return s.sender.Send(ctx, to, "Your account is ready", body)
}
