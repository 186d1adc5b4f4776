package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the bot.
type Config struct {
	Port string

	// Broker (TastyTrade)
	TTUsername     string
	TTPassword     string
	TTBaseURL      string
	TTAccountIndex int
	SymbolBase     string

	// Market data
	FeedSymbol     string
	BinanceTestnet bool
	UseMockFeed    bool

	// Notifications
	TelegramToken  string
	TelegramChatID string

	// Clock and sessions
	Timezone     string
	Location     *time.Location
	SessionsFile string
	Sessions     []SessionConfig
	Weekend      WeekendConfig

	EntryDelay   time.Duration
	MaxIdle      time.Duration
	OrderTimeout time.Duration

	// Persistence
	StatePath string
	DBPath    string

	// Execution
	DryRun            bool
	DryRunSlippageBps float64

	// Behaviour knobs
	ResetReconnectsDaily  bool
	LevelFetchMaxAttempts int

	// Auth / ops
	JWTSecret string

	// Localization and logging
	Language string
	LogLevel string
}

// Load reads environment variables (optionally via .env) and the session
// table into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		TTUsername:            os.Getenv("TT_USERNAME"),
		TTPassword:            os.Getenv("TT_PASSWORD"),
		TTBaseURL:             getEnv("TT_BASE_URL", "https://api.tastyworks.com"),
		TTAccountIndex:        getEnvInt("TT_ACCOUNT_INDEX", 1),
		SymbolBase:            getEnv("SYMBOL_BASE", "/MES"),
		FeedSymbol:            getEnv("FEED_SYMBOL", "PAXGUSDT"),
		BinanceTestnet:        getEnv("BINANCE_TESTNET", "false") == "true",
		UseMockFeed:           getEnv("USE_MOCK_FEED", "false") == "true",
		TelegramToken:         os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:        os.Getenv("TELEGRAM_CHAT_ID"),
		Timezone:              getEnv("TIMEZONE", "America/Los_Angeles"),
		SessionsFile:          getEnv("SESSIONS_FILE", "./sessions.yaml"),
		EntryDelay:            time.Duration(getEnvInt("ENTRY_DELAY_MINUTES", 5)) * time.Minute,
		MaxIdle:               time.Duration(getEnvInt("MAX_IDLE_SECONDS", 300)) * time.Second,
		OrderTimeout:          time.Duration(getEnvInt("ORDER_TIMEOUT_SECONDS", 90)) * time.Second,
		StatePath:             getEnv("STATE_PATH", "./data/trading_state.json"),
		DBPath:                getEnv("DB_PATH", "./data/journal.db"),
		DryRun:                getEnv("DRY_RUN", "true") == "true",
		DryRunSlippageBps:     getEnvFloat("DRY_RUN_SLIPPAGE_BPS", 0),
		ResetReconnectsDaily:  getEnv("RESET_RECONNECTS_DAILY", "false") == "true",
		LevelFetchMaxAttempts: getEnvInt("LEVEL_FETCH_MAX_ATTEMPTS", 1),
		JWTSecret:             getEnv("JWT_SECRET", "dev-secret"),
		Language:              getEnv("LANGUAGE", "en"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	weekend, err := parseWeekend(getEnv("WEEKEND_CLOSE", "fri 14"), getEnv("WEEKEND_OPEN", "sun 15"))
	if err != nil {
		return nil, err
	}
	cfg.Weekend = weekend

	sessions, err := LoadSessions(cfg.SessionsFile)
	if err != nil {
		return nil, err
	}
	cfg.Sessions = sessions

	if cfg.LevelFetchMaxAttempts < 1 {
		cfg.LevelFetchMaxAttempts = 1
	}
	if cfg.MaxIdle <= 0 {
		return nil, fmt.Errorf("MAX_IDLE_SECONDS must be positive")
	}
	if !cfg.DryRun && (cfg.TTUsername == "" || cfg.TTPassword == "") {
		return nil, fmt.Errorf("TT_USERNAME and TT_PASSWORD are required when DRY_RUN=false")
	}
	return cfg, nil
}

// NotificationsEnabled reports whether Telegram credentials are present.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// WeekendConfig is the weekly no-trading span; Enabled=false disables it.
type WeekendConfig struct {
	Enabled   bool
	CloseDay  time.Weekday
	CloseHour int
	OpenDay   time.Weekday
	OpenHour  int
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekend(closeAt, openAt string) (WeekendConfig, error) {
	if strings.EqualFold(closeAt, "off") || strings.EqualFold(openAt, "off") {
		return WeekendConfig{}, nil
	}
	cd, ch, err := parseDayHour(closeAt)
	if err != nil {
		return WeekendConfig{}, fmt.Errorf("WEEKEND_CLOSE: %w", err)
	}
	od, oh, err := parseDayHour(openAt)
	if err != nil {
		return WeekendConfig{}, fmt.Errorf("WEEKEND_OPEN: %w", err)
	}
	return WeekendConfig{Enabled: true, CloseDay: cd, CloseHour: ch, OpenDay: od, OpenHour: oh}, nil
}

// parseDayHour parses "fri 14".
func parseDayHour(v string) (time.Weekday, int, error) {
	parts := strings.Fields(strings.ToLower(v))
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected \"<day> <hour>\", got %q", v)
	}
	day, ok := weekdays[parts[0][:min(3, len(parts[0]))]]
	if !ok {
		return 0, 0, fmt.Errorf("unknown weekday %q", parts[0])
	}
	hour, err := strconv.Atoi(parts[1])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour %q", parts[1])
	}
	return day, hour, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
