// Package notify delivers queued notifications through the configured channel
// transports and reports outcomes back to the queue.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
	"github.com/resend/resend-go/v2"
	tele "gopkg.in/telebot.v4"
)

// Transport delivers one notification over one channel. The recipient comes
// from the notification's user_ref, whose meaning is channel-specific (an
// email address, a Telegram chat ID).
type Transport interface {
	Deliver(ctx context.Context, n *domain.Notification) error
}

// LogTransport logs instead of sending — used in ENV=local.
type LogTransport struct {
	channel domain.Channel
	logger  *slog.Logger
}

func NewLogTransport(channel domain.Channel, logger *slog.Logger) *LogTransport {
	return &LogTransport{channel: channel, logger: logger}
}

func (t *LogTransport) Deliver(_ context.Context, n *domain.Notification) error {
	t.logger.Info("notification delivery (local dev)",
		"channel", t.channel,
		"to", n.UserRef,
		"kind", n.Kind,
		"subject", n.Subject,
	)
	return nil
}

// EmailTransport sends via the Resend API.
type EmailTransport struct {
	client *resend.Client
	from   string
}

func NewEmailTransport(apiKey, from string) *EmailTransport {
	return &EmailTransport{client: resend.NewClient(apiKey), from: from}
}

func (t *EmailTransport) Deliver(ctx context.Context, n *domain.Notification) error {
	params := &resend.SendEmailRequest{
		From:    t.from,
		To:      []string{n.UserRef},
		Subject: n.Subject,
		Html:    n.Body,
	}
	if _, err := t.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// ChatTransport sends via a Telegram bot. user_ref must be the numeric chat
// ID.
type ChatTransport struct {
	bot *tele.Bot
}

func NewChatTransport(token string) (*ChatTransport, error) {
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &ChatTransport{bot: bot}, nil
}

func (t *ChatTransport) Deliver(_ context.Context, n *domain.Notification) error {
	chatID, err := strconv.ParseInt(n.UserRef, 10, 64)
	if err != nil {
		return fmt.Errorf("user_ref %q is not a telegram chat id: %w", n.UserRef, err)
	}

	text := n.Subject
	if n.Body != "" {
		text = n.Subject + "\n\n" + n.Body
	}
	if _, err := t.bot.Send(&tele.Chat{ID: chatID}, text); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
