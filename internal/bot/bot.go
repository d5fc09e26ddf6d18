// Package bot is the Telegram command layer of the relay: it turns chat
// commands and inline-button callbacks into relay status requests.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kanbansync/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const (
	CallbackStatusAll = "status_all"
	retryDelay        = 3 * time.Second
)

// Relay is the part of the hub the bot drives.
type Relay interface {
	ClientCount() int
	RequestStatus(ctx context.Context, chatID int64) error
	RequestColumnStatus(ctx context.Context, chatID int64, status string) error
	SetNotificationTarget(chatID int64)
}

type Config struct {
	// Port is reported by /connections.
	Port string
	// PollTimeout is the long-poll timeout in seconds.
	PollTimeout int
	Logger      log.FieldLogger
}

type Bot struct {
	api         *tgbotapi.BotAPI
	relay       Relay
	replies     notify.Sink
	port        string
	pollTimeout int
	logger      log.FieldLogger
}

func New(api *tgbotapi.BotAPI, relay Relay, replies notify.Sink, cfg Config) *Bot {
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Bot{
		api:         api,
		relay:       relay,
		replies:     replies,
		port:        cfg.Port,
		pollTimeout: cfg.PollTimeout,
		logger:      logger,
	}
}

// Run long-polls getUpdates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.WithField("bot", b.api.Self.UserName).Info("🤖 Telegram bot started")
	offset := 0
	for {
		if ctx.Err() != nil {
			b.logger.Info("🛑 Bot stopped")
			return nil
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = b.pollTimeout
		updates, err := b.api.GetUpdates(u)
		if err != nil {
			b.logger.WithError(err).Error("❌ Failed to get updates, retrying")
			select {
			case <-ctx.Done():
				continue
			case <-time.After(retryDelay):
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches one update to its command or callback handler.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand() && update.Message.Chat != nil:
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	logger := b.logger.WithFields(log.Fields{"command": msg.Command(), "chat_id": chatID})
	logger.Debug("📨 Command received")

	switch msg.Command() {
	case "start":
		b.reply(ctx, chatID, startText, true)
	case "help":
		b.reply(ctx, chatID, helpText, true)
	case "status":
		if b.relay.ClientCount() == 0 {
			b.reply(ctx, chatID, "❌ *Нет подключенных Kanban досок*\n\nОткройте Kanban доску в браузере для подключения.", true)
			return
		}
		if err := b.relay.RequestStatus(ctx, chatID); err != nil {
			logger.WithError(err).Error("❌ Status request failed")
			b.reply(ctx, chatID, "❌ Ошибка при запросе статуса", false)
		}
	case "connections":
		b.reply(ctx, chatID, b.connectionsText(), true)
	case "chatid":
		b.reply(ctx, chatID, fmt.Sprintf("🆔 Ваш Chat ID: %d\n\nДобавьте этот ID в .env файл как CHAT_ID=%d", chatID, chatID), false)
	case "notify":
		b.relay.SetNotificationTarget(chatID)
		b.reply(ctx, chatID, "✅ Этот чат теперь будет получать уведомления о событиях Kanban доски", false)
	default:
		logger.Debug("Ignoring unknown command")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// answer first so the client stops showing the spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.WithError(err).Warn("⚠️  Failed to answer callback")
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	var err error
	switch data := cb.Data; {
	case data == CallbackStatusAll:
		err = b.relay.RequestStatus(ctx, chatID)
	case strings.HasPrefix(data, notify.ColumnCallbackPrefix):
		err = b.relay.RequestColumnStatus(ctx, chatID, strings.TrimPrefix(data, notify.ColumnCallbackPrefix))
	default:
		b.logger.WithField("data", data).Debug("Ignoring unknown callback")
		return
	}
	if err != nil {
		b.logger.WithError(err).WithField("chat_id", chatID).Error("❌ Status request failed")
		b.reply(ctx, chatID, "❌ Ошибка при запросе статуса", false)
	}
}

func (b *Bot) connectionsText() string {
	count := b.relay.ClientCount()
	mark, state := "❌", "Нет подключений"
	if count > 0 {
		mark, state = "✅", "Активно"
	}
	return fmt.Sprintf("%s *Подключения:*\n\n• Подключенных досок: %d\n• WebSocket порт: %s\n• Статус: %s", mark, count, b.port, state)
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, markdown bool) {
	if err := b.replies.Send(ctx, notify.Message{ChatID: chatID, Text: text, Markdown: markdown}); err != nil {
		b.logger.WithError(err).WithField("chat_id", chatID).Error("❌ Failed to send reply")
	}
}

const startText = `🎯 *Kanban Tracker Bot*

Я отслеживаю перемещения карточек на вашей Kanban доске и присылаю уведомления.

*Доступные команды:*
/status - выбрать колонку для просмотра
/connections - информация о подключениях
/notify - присылать уведомления в этот чат
/help - справка по командам

*Автоматические уведомления:*
• Создание новых карточек
• Перемещение между колонками
• Обновление карточек
• Удаление карточек`

const helpText = `📋 *Доступные команды:*

/status - выбрать колонку для просмотра
/connections - информация о подключениях
/chatid - показать ID этого чата
/notify - присылать уведомления в этот чат
/help - показать эту справку

*Автоматические уведомления:*
• Создание новых карточек
• Перемещение между колонками
• Обновление карточек
• Удаление карточек`
