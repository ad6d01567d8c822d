package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Store drivers
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	TuningFile string `env:"TUNING_FILE" envDefault:""`

	// Storage
	StoreDriver string        `env:"STORE_DRIVER" envDefault:"sqlite"`
	StateDir    string        `env:"STATE_DIR" envDefault:"./data"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"./data/predictor.db"`
	LockTTL     time.Duration `env:"LOCK_TTL" envDefault:"2h"`
	DBHost      string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort      string        `env:"DB_PORT" envDefault:"5432"`
	DBUser      string        `env:"DB_USER" envDefault:"predictor"`
	DBPassword  string        `env:"DB_PASSWORD" envDefault:"-"`
	DBName      string        `env:"DB_NAME" envDefault:"predictor"`
	DBSSLMode   string        `env:"DB_SSLMODE" envDefault:"disable"`

	// Signal sources
	StatsFile      string `env:"STATS_FILE" envDefault:"./data/stats.json"`
	SignalsURL     string `env:"SIGNALS_URL" envDefault:""`
	RemoteSignals  string `env:"REMOTE_SIGNALS" envDefault:"tactical,referee"`
	SignalsAPIKey  string `env:"SIGNALS_API_KEY" envDefault:"-"`
	RequestTimeout int    `env:"REQUEST_TIMEOUT" envDefault:"10"` // seconds
	RequestsPerSec int    `env:"REQUESTS_PER_SEC" envDefault:"5"`

	// Scheduler
	LearnSchedule  string `env:"LEARN_SCHEDULE" envDefault:"0 3 * * *"`
	EvolveSchedule string `env:"EVOLVE_SCHEDULE" envDefault:"30 3 * * *"`
	LearnWindow    int    `env:"LEARN_WINDOW_DAYS" envDefault:"30"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9102"`

	// Operator notifications
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN" envDefault:""`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID" envDefault:"0"`

	Tuning Tuning
}

// Load initializes configuration from environment variables and the optional tuning file
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.TuningFile = os.Getenv("TUNING_FILE")

	cfg.StoreDriver = getEnvWithDefault("STORE_DRIVER", DriverSQLite)
	cfg.StateDir = getEnvWithDefault("STATE_DIR", "./data")
	cfg.SQLitePath = getEnvWithDefault("SQLITE_PATH", "./data/predictor.db")
	cfg.LockTTL = getEnvDurationWithDefault("LOCK_TTL", 2*time.Hour)
	cfg.DBHost = getEnvWithDefault("DB_HOST", "localhost")
	cfg.DBPort = getEnvWithDefault("DB_PORT", "5432")
	cfg.DBUser = getEnvWithDefault("DB_USER", "predictor")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = getEnvWithDefault("DB_NAME", "predictor")
	cfg.DBSSLMode = getEnvWithDefault("DB_SSLMODE", "disable")

	cfg.StatsFile = getEnvWithDefault("STATS_FILE", "./data/stats.json")
	cfg.SignalsURL = os.Getenv("SIGNALS_URL")
	cfg.RemoteSignals = getEnvWithDefault("REMOTE_SIGNALS", "tactical,referee")
	cfg.SignalsAPIKey = os.Getenv("SIGNALS_API_KEY")
	cfg.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", 10)
	cfg.RequestsPerSec = getEnvIntWithDefault("REQUESTS_PER_SEC", 5)

	cfg.LearnSchedule = getEnvWithDefault("LEARN_SCHEDULE", "0 3 * * *")
	cfg.EvolveSchedule = getEnvWithDefault("EVOLVE_SCHEDULE", "30 3 * * *")
	cfg.LearnWindow = getEnvIntWithDefault("LEARN_WINDOW_DAYS", 30)
	cfg.MetricsAddr = getEnvWithDefault("METRICS_ADDR", ":9102")

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = getEnvInt64WithDefault("TELEGRAM_CHAT_ID", 0)

	tuning, err := LoadTuning(cfg.TuningFile)
	if err != nil {
		return nil, err
	}
	cfg.Tuning = tuning

	return &cfg, nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
