package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kanbansync/internal/agent"
	"kanbansync/internal/config"
	"kanbansync/internal/offline"
	"kanbansync/internal/protocol"
	"kanbansync/internal/repository"
	"kanbansync/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const postgresPollInterval = 2 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadAgent()

	flagSet := pflag.NewFlagSet("kanban-agent", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.RelayURL, "url", cfg.RelayURL, "relay WebSocket URL")
	flagSet.StringVar(&cfg.ClientType, "client-type", cfg.ClientType, "client role: browser or miniApp")
	flagSet.StringVar(&cfg.OfflineDBPath, "db", cfg.OfflineDBPath, "offline SQLite database path")
	flagSet.BoolVar(&cfg.ExtendedColumns, "extended", cfg.ExtendedColumns, "start a new board with the five-column layout")
	flagSet.StringVar(&cfg.DocumentStore, "store", cfg.DocumentStore, "remote document store: none, redis or postgres")
	flagSet.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "reconnect attempts before going offline")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	logFile := flagSet.String("log-file", "kanban-agent.log", "write logs to this file (the terminal belongs to the board)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			flagSet.PrintDefaults()
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.PrintDefaults()
		return nil
	}

	logger := config.NewLogger(cfg.LogLevel)
	out, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer out.Close()
	logger.SetOutput(out)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := offline.Open(cfg.OfflineDBPath, cfg.ExtendedColumns, logger)
	if err != nil {
		return fmt.Errorf("open offline store: %w", err)
	}
	defer store.Close()

	remote, err := openDocumentStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	role := protocol.ParseClientType(cfg.ClientType)
	var program *tea.Program

	a := agent.New(agent.Options{
		URL:    cfg.RelayURL,
		Role:   role,
		Dialer: agent.WebsocketDialer{ClientType: role},
		Local:  store,
		Remote: remote,
		Logger: logger,
		Backoff: agent.Backoff{
			Base:   cfg.BaseDelay,
			Max:    cfg.MaxDelay,
			Jitter: cfg.Jitter,
		},
		MaxAttempts:        cfg.MaxAttempts,
		SyncTimeout:        cfg.SyncTimeout,
		StaleTaskRetention: cfg.StaleTaskRetention,
		SweepInterval:      cfg.SweepInterval,
		OnChange: func(v agent.View) {
			if program != nil {
				program.Send(tui.ViewMsg(v))
			}
		},
	})

	program = tea.NewProgram(tui.New(a, a.View()), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		if err := a.Start(ctx); err != nil {
			logger.WithError(err).Error("❌ Agent failed to start")
			program.Quit()
		}
	}()
	defer a.Stop()

	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// openDocumentStore connects the optional remote replica selected by
// DOCUMENT_STORE.
func openDocumentStore(ctx context.Context, cfg *config.AgentConfig, logger log.FieldLogger) (repository.DocumentStore, error) {
	switch cfg.DocumentStore {
	case "", "none":
		return nil, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		return repository.NewRedisStore(redis.NewClient(opts), logger), nil
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := repository.NewPostgresStore(db, logger, postgresPollInterval)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate documents: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown DOCUMENT_STORE %q", cfg.DocumentStore)
	}
}
