// Package alert delivers operator notifications to a Telegram admin chat.
package alert

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"
)

// BotSender abstracts the Telegram bot API for sending messages.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends operator alerts.
type Notifier interface {
	Notify(ctx context.Context, text string) error
	NotifyImage(ctx context.Context, caption string, png []byte) error
}

// TelegramNotifier sends alerts to a single admin chat.
type TelegramNotifier struct {
	bot    BotSender
	chatID int64
}

// NewTelegramNotifier connects to the bot API with token.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	log.Info().Str("username", bot.Self.UserName).Int64("chatId", chatID).Msg("operator alerts enabled")
	return NewTelegramNotifierWithSender(bot, chatID), nil
}

// NewTelegramNotifierWithSender creates a notifier over an existing sender.
func NewTelegramNotifierWithSender(bot BotSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

// Notify sends a text alert.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	return nil
}

// NotifyImage sends a PNG with a caption.
func (n *TelegramNotifier) NotifyImage(ctx context.Context, caption string, png []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(n.chatID, tgbotapi.FileBytes{Name: "qr.png", Bytes: png})
	photo.Caption = caption
	if _, err := n.bot.Send(photo); err != nil {
		return fmt.Errorf("failed to send image alert: %w", err)
	}
	return nil
}

// LogNotifier writes alerts to the log when no Telegram chat is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, text string) error {
	log.Warn().Str("alert", text).Msg("operator alert")
	return nil
}

func (LogNotifier) NotifyImage(ctx context.Context, caption string, png []byte) error {
	log.Warn().Str("alert", caption).Int("bytes", len(png)).Msg("operator alert with image")
	return nil
}

func formatMsg(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

// PairingCaption is the caption sent with a WhatsApp pairing QR code.
func PairingCaption(path string) string {
	return formatMsg(`
		WhatsApp needs to be paired.

		Open WhatsApp on the trading phone, go to Linked devices and scan this code.
		The same code was written to %s.`, path)
}

// PairedMessage confirms a successful pairing.
func PairedMessage(phone string) string {
	return formatMsg(`
		WhatsApp paired as %s.
		Listening for group trade posts.`, phone)
}
