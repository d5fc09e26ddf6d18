package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSink delivers notifications through the Bot API.
type TelegramSink struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramSink(bot *tgbotapi.BotAPI) *TelegramSink {
	return &TelegramSink{bot: bot}
}

func (s *TelegramSink) Send(ctx context.Context, msg Message) error {
	if msg.ChatID == 0 {
		return ErrNoTarget
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	if msg.Markdown {
		out.ParseMode = tgbotapi.ModeMarkdown
	}
	if len(msg.Buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(msg.Buttons))
		for _, b := range msg.Buttons {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)))
		}
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}

	if _, err := s.bot.Send(out); err != nil {
		return fmt.Errorf("telegram sendMessage to %d: %w", msg.ChatID, err)
	}
	return nil
}
