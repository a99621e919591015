package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"coinwatch/internal/adapters/logger" // Import the logger package for LogLevel
)

// ExchangeConfig holds the identity and credentials of one configured
// exchange account. Immutable after startup.
type ExchangeConfig struct {
	Name         string        // Lower-case exchange name, e.g. "hitbtc"
	APIKey       string
	APISecret    string
	APIURL       string        // Optional base URL override
	Timeout      time.Duration // Per-call fetch timeout
	PollInterval time.Duration // Minimum spacing between this exchange's cycles
}

// Config holds all application configuration.
type Config struct {
	Exchanges []ExchangeConfig

	// Scheduler
	PollInterval time.Duration // Global tick period

	// Aggregation
	BaseCurrency string // Currency the portfolio total is expressed in

	// History ledger
	HistoryRetain int // Confirmed rows kept per exchange

	// Database
	DBPath string

	// Notifications (empty token/chat id disables dispatch)
	TelegramAPIURL string
	TelegramToken  string
	TelegramChatID string
	TelegramProxy  string

	// Read-only web API (empty address disables the server)
	HTTPAddr string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Scheduler
	pollSeconds := getEnvAsInt("POLL_INTERVAL_SECONDS", 15)
	if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	// Aggregation
	cfg.BaseCurrency = strings.ToUpper(getEnv("BASE_CURRENCY", "BTC"))
	if cfg.BaseCurrency == "" {
		errs = append(errs, "BASE_CURRENCY must be set")
	}

	// History ledger
	cfg.HistoryRetain = getEnvAsInt("HISTORY_RETAIN", 100)
	if cfg.HistoryRetain <= 0 {
		errs = append(errs, "HISTORY_RETAIN must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/coinwatch.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Notifications
	cfg.TelegramAPIURL = getEnv("TELEGRAM_API_URL", "https://api.telegram.org")
	cfg.TelegramToken = getEnv("TELEGRAM_TOKEN", "")
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")
	cfg.TelegramProxy = getEnv("TELEGRAM_PROXY", "")

	// Web
	cfg.HTTPAddr = getEnv("HTTP_ADDR", "")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr)

	// Exchanges: EXCHANGES lists the names; per-exchange settings come
	// from <NAME>_API_KEY, <NAME>_API_SECRET, <NAME>_API_URL,
	// <NAME>_TIMEOUT_SECONDS and <NAME>_POLL_SECONDS.
	names := strings.Split(getEnv("EXCHANGES", ""), ",")
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		exCfg, exErrs := loadExchange(name, cfg.PollInterval)
		errs = append(errs, exErrs...)
		cfg.Exchanges = append(cfg.Exchanges, exCfg)
	}
	if len(cfg.Exchanges) == 0 {
		errs = append(errs, "EXCHANGES must list at least one exchange")
	}
	seen := make(map[string]bool)
	for _, ex := range cfg.Exchanges {
		if seen[ex.Name] {
			errs = append(errs, fmt.Sprintf("exchange %q configured twice", ex.Name))
		}
		seen[ex.Name] = true
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

func loadExchange(name string, defaultInterval time.Duration) (ExchangeConfig, []string) {
	var errs []string
	prefix := strings.ToUpper(name) + "_"

	exCfg := ExchangeConfig{
		Name:      name,
		APIKey:    getEnv(prefix+"API_KEY", ""),
		APISecret: getEnv(prefix+"API_SECRET", ""),
		APIURL:    getEnv(prefix+"API_URL", ""),
	}
	if exCfg.APIKey == "" {
		errs = append(errs, prefix+"API_KEY must be set")
	}
	if exCfg.APISecret == "" {
		errs = append(errs, prefix+"API_SECRET must be set")
	}

	timeoutSeconds := getEnvAsInt(prefix+"TIMEOUT_SECONDS", 5)
	if timeoutSeconds <= 0 {
		errs = append(errs, prefix+"TIMEOUT_SECONDS must be positive")
	}
	exCfg.Timeout = time.Duration(timeoutSeconds) * time.Second

	pollSeconds := getEnvAsInt(prefix+"POLL_SECONDS", 0)
	if pollSeconds < 0 {
		errs = append(errs, prefix+"POLL_SECONDS cannot be negative")
	}
	exCfg.PollInterval = time.Duration(pollSeconds) * time.Second
	if exCfg.PollInterval < defaultInterval {
		exCfg.PollInterval = defaultInterval
	}

	return exCfg, errs
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
