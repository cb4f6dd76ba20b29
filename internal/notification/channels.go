package notification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vs-ai-ds/hms-backend/internal/email"
	"github.com/vs-ai-ds/hms-backend/internal/model"
)

// Sender delivers one notification over its channel.
type Sender interface {
	Send(ctx context.Context, n *model.Notification) error
}

// Channels builds the channel table the dispatcher routes on. SMS and
// WhatsApp have no provider wired; their senders log the message and
// report success so delivery records stay consistent across channels.
func Channels(emailSender email.Sender, smsEnabled, whatsappEnabled bool, logger zerolog.Logger) map[string]Sender {
	return map[string]Sender{
		model.NotificationChannelEmail:    &emailChannel{sender: emailSender},
		model.NotificationChannelSMS:      &logChannel{name: model.NotificationChannelSMS, enabled: smsEnabled, logger: logger},
		model.NotificationChannelWhatsApp: &logChannel{name: model.NotificationChannelWhatsApp, enabled: whatsappEnabled, logger: logger},
	}
}

type emailChannel struct {
	sender email.Sender
}

func (c *emailChannel) Send(ctx context.Context, n *model.Notification) error {
	return c.sender.Send(ctx, n.Recipient, n.Subject, n.Content)
}

type logChannel struct {
	name    string
	enabled bool
	logger  zerolog.Logger
}

func (c *logChannel) Send(_ context.Context, n *model.Notification) error {
	event := c.logger.Info()
	if !c.enabled {
		event = c.logger.Debug()
	}
	event.
		Str("channel", c.name).
		Bool("enabled", c.enabled).
		Str("recipient", n.Recipient).
		Str("content", n.Content).
		Msg("message logged without provider delivery")
	return nil
}
