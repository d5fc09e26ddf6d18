package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"kanbansync/internal/bot"
	"kanbansync/internal/config"
	"kanbansync/internal/notify"
	"kanbansync/internal/relay"
	"kanbansync/internal/repository"
	"kanbansync/internal/server"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
)

const botPollTimeout = 60

// @title           Kanban Relay API
// @version         1.0
// @description     WebSocket relay and notification control for synchronized Kanban boards.

// @contact.name   octaview
// @contact.url    t.me/octaview
// @contact.email  octaviewes@gmail.com

// @host      localhost:3001
// @BasePath  /

// @schemes http
func main() {
	cfg := config.LoadRelay()
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	target := cfg.ChatID
	var onTarget func(int64)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatalf("❌ Invalid REDIS_URL: %v", err)
		}
		rc := redis.NewClient(opts)
		defer rc.Close()
		store := repository.NewRedisStore(rc, logger)

		saved, err := store.LoadNotificationTarget(ctx)
		switch {
		case err == nil:
			target = saved
			logger.WithField("chat_id", saved).Info("🎯 Restored notification target")
		case errors.Is(err, repository.ErrDocumentNotFound):
		default:
			logger.WithError(err).Warn("⚠️  Could not load notification target")
		}
		onTarget = func(chatID int64) {
			if err := store.SaveNotificationTarget(context.Background(), chatID); err != nil {
				logger.WithError(err).Error("❌ Failed to persist notification target")
			}
		}
	}

	var sink notify.Sink = notify.NewLogSink(logger)
	var api *tgbotapi.BotAPI
	if cfg.BotToken != "" {
		var err error
		api, err = tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			logger.Fatalf("❌ Telegram bot initialization failed: %v", err)
		}
		sink = notify.NewTelegramSink(api)
	} else {
		logger.Warn("⚠️  BOT_TOKEN is not set, notifications go to the log")
	}

	hub := relay.NewHub(relay.Config{
		Sink:           sink,
		Formatter:      notify.NewFormatter(cfg.ColumnNames),
		Target:         target,
		SendBuffer:     cfg.ClientSendBuffer,
		Logger:         logger,
		OnTargetChange: onTarget,
	})
	go hub.Run(ctx)

	if api != nil {
		b := bot.New(api, hub, sink, bot.Config{Port: cfg.Port, PollTimeout: botPollTimeout, Logger: logger})
		go func() {
			if err := b.Run(ctx); err != nil {
				logger.WithError(err).Error("❌ Bot stopped")
			}
		}()
	}

	if err := server.Init(cfg, hub, logger).Run(ctx); err != nil {
		logger.WithError(err).Error("❌ Relay server failed")
		os.Exit(1)
	}
	logger.Info("👋 Relay stopped")
}
