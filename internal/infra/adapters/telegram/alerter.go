package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"order-bridge/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*AdminAlerter)(nil)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// AdminAlerter sends alerts as plain messages to an operator chat.
type AdminAlerter struct {
	bot    messageSender
	chatID int64
}

func NewAdminAlerter(bot messageSender, chatID int64) *AdminAlerter {
	return &AdminAlerter{bot: bot, chatID: chatID}
}

func (a *AdminAlerter) Name() string { return "telegram" }

func (a *AdminAlerter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(a.chatID, text)
	msg.DisableWebPagePreview = true
	_, err := a.bot.Send(msg)
	return err
}
