// Package notify sends operator messages about retrain results.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sender is the part of the bot API the notifier needs
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts operator messages to a single chat
type Telegram struct {
	sender Sender
	chatID int64
	logger zerolog.Logger
}

// NewTelegram connects to the bot API. An empty token yields a notifier that
// only logs, so installations without a bot keep working.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return NewTelegramWithSender(nil, chatID), nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return NewTelegramWithSender(bot, chatID), nil
}

// NewTelegramWithSender wraps an already built bot client. A nil sender
// only logs.
func NewTelegramWithSender(sender Sender, chatID int64) *Telegram {
	return &Telegram{sender: sender, chatID: chatID, logger: log.With().Str("component", "notify").Logger()}
}

// Notify sends text to the configured chat
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.sender == nil {
		t.logger.Info().Str("message", text).Msg("Telegram disabled, notification logged only")
		return nil
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.sender.Send(msg); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", t.chatID, err)
	}
	t.logger.Debug().Int64("chat_id", t.chatID).Msg("Notification sent")
	return nil
}
