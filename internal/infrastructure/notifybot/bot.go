// Package notifybot delivers broadcast events to users through a Telegram bot
package notifybot

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	tgbot "github.com/go-telegram/bot"
	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/internal/domain/broadcast/entities"
)

// Sender is the part of the bot API the sink uses
type Sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) error
}

type botSender struct {
	bot *tgbot.Bot
}

func (s botSender) SendMessage(ctx context.Context, params *tgbot.SendMessageParams) error {
	_, err := s.bot.SendMessage(ctx, params)
	return err
}

// Sink sends a short text to the chat of the user owning the job
type Sink struct {
	sender   Sender
	logger   zerolog.Logger
	failures atomic.Int32
}

// New creates a bot backed sink
func New(token string, logger zerolog.Logger, opts ...tgbot.Option) (*Sink, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	b, err := tgbot.New(token, append([]tgbot.Option{tgbot.WithSkipGetMe()}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info().Msg("Notification bot created")
	return NewWithSender(botSender{bot: b}, logger), nil
}

// NewWithSender creates a sink over an arbitrary sender
func NewWithSender(sender Sender, logger zerolog.Logger) *Sink {
	return &Sink{
		sender: sender,
		logger: logger.With().Str("component", "notify_bot").Logger(),
	}
}

// Name identifies the sink
func (s *Sink) Name() string {
	return "bot"
}

// Publish sends the event text to the user, bot chats share the user id
func (s *Sink) Publish(ctx context.Context, event entities.Event) error {
	text := Format(event)
	if text == "" {
		return nil
	}

	err := s.sender.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: event.UserID,
		Text:   text,
	})
	if err != nil {
		s.failures.Add(1)
		return fmt.Errorf("failed to notify user %d: %w", event.UserID, err)
	}
	s.failures.Store(0)
	return nil
}

// IsHealthy reports whether recent deliveries succeed
func (s *Sink) IsHealthy() bool {
	return s.failures.Load() < 5
}

// Format renders an event as a chat message, empty for events users are not told about
func Format(event entities.Event) string {
	switch event.Type {
	case entities.EventStarted:
		return fmt.Sprintf("Broadcast started for account #%d", event.AccountID)
	case entities.EventStopped:
		var b strings.Builder
		fmt.Fprintf(&b, "Broadcast stopped for account #%d", event.AccountID)
		if reason := describeReason(event.Reason); reason != "" {
			b.WriteString(": ")
			b.WriteString(reason)
		}
		return b.String()
	case entities.EventCycleSummary:
		if event.Stats == nil {
			return ""
		}
		st := event.Stats
		return fmt.Sprintf("Cycle %d for account #%d: %d sent, %d failed, %d skipped (%s)",
			st.Cycle, event.AccountID, st.Sent, st.Failed, st.Skipped, st.Source)
	}
	return ""
}

func describeReason(reason string) string {
	switch reason {
	case "", "requested":
		return ""
	case "session_revoked":
		return "the session was revoked, link the account again"
	case "account_removed":
		return "the account was removed"
	case "lease_lost":
		return "the job moved to another instance"
	case "shutdown":
		return "the service is restarting"
	}
	return reason
}
