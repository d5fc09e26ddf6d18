package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// RelayConfig: настройки relay-процесса.
type RelayConfig struct {
	Port             string
	BotToken         string
	ChatID           int64
	RedisURL         string
	LogLevel         string
	ClientSendBuffer int
	// ColumnNames overrides how column statuses are spelled in notifications.
	ColumnNames map[string]string
}

// AgentConfig: настройки клиента синхронизации.
type AgentConfig struct {
	RelayURL           string
	ClientType         string
	OfflineDBPath      string
	MaxAttempts        int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	Jitter             float64
	SyncTimeout        time.Duration
	StaleTaskRetention time.Duration
	SweepInterval      time.Duration
	ExtendedColumns    bool
	DocumentStore      string
	RedisURL           string
	DatabaseURL        string
	LogLevel           string
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}
}

func LoadRelay() *RelayConfig {
	loadDotEnv()

	return &RelayConfig{
		Port:             getEnv("RELAY_PORT", "3001"),
		BotToken:         getEnv("BOT_TOKEN", ""),
		ChatID:           getEnvInt64("CHAT_ID", 0),
		RedisURL:         getEnv("REDIS_URL", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ClientSendBuffer: getEnvInt("CLIENT_SEND_BUFFER", 256),
		ColumnNames:      ParseColumnNames(getEnv("COLUMN_NAMES", "")),
	}
}

func LoadAgent() *AgentConfig {
	loadDotEnv()

	return &AgentConfig{
		RelayURL:           getEnv("RELAY_URL", "ws://localhost:3001/ws"),
		ClientType:         getEnv("CLIENT_TYPE", "browser"),
		OfflineDBPath:      getEnv("OFFLINE_DB_PATH", "kanban.db"),
		MaxAttempts:        getEnvInt("RECONNECT_MAX_ATTEMPTS", 5),
		BaseDelay:          getEnvDuration("RECONNECT_BASE_DELAY", 3*time.Second),
		MaxDelay:           getEnvDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		Jitter:             getEnvFloat("RECONNECT_JITTER", 0),
		SyncTimeout:        getEnvDuration("SYNC_TIMEOUT", 5*time.Second),
		StaleTaskRetention: getEnvDuration("STALE_TASK_RETENTION", 72*time.Hour),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		ExtendedColumns:    getEnvBool("EXTENDED_COLUMNS", false),
		DocumentStore:      getEnv("DOCUMENT_STORE", "none"),
		RedisURL:           getEnv("REDIS_URL", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
}

// ParseColumnNames reads "todo=К выполнению,done=Готово".
func ParseColumnNames(raw string) map[string]string {
	names := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if key == "" || val == "" {
			continue
		}
		names[key] = val
	}
	return names
}

// NewLogger builds the process logger at the requested level.
func NewLogger(level string) *log.Logger {
	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warnf("⚠️  Unknown LOG_LEVEL %q, using info", level)
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		log.Printf("⚠️  invalid %s=%q, using %d", key, raw, defaultVal)
		return defaultVal
	}
	return n
}

func getEnvInt64(key string, defaultVal int64) int64 {
	raw, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(raw) == "" {
		return defaultVal
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		log.Printf("⚠️  invalid %s=%q, using %d", key, raw, defaultVal)
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || f < 0 {
		log.Printf("⚠️  invalid %s=%q, using %v", key, raw, defaultVal)
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("⚠️  invalid %s=%q, using %v", key, raw, defaultVal)
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		log.Printf("⚠️  invalid %s=%q, using %s", key, raw, defaultVal)
		return defaultVal
	}
	return d
}
