package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// bKash Gateway
	BkashBaseURL      string // sandbox/productionの切り替えはこのURLのみで行う
	BkashAppKey       string
	BkashAppSecret    string
	BkashUsername     string
	BkashPassword     string
	GatewayTimeout    time.Duration
	GatewayMaxRetries int

	// Telegram
	TelegramBotToken string
	AuthDateMaxAge   time.Duration

	// Session
	SessionMaxAge        int
	SessionRetentionDays int

	// Payment
	Currency string

	// Rate Limit
	RateLimitGeneral int
	RateLimitDeposit int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BkashBaseURL = os.Getenv("BKASH_BASE_URL")
	if cfg.BkashBaseURL == "" {
		missing = append(missing, "BKASH_BASE_URL")
	}

	cfg.BkashAppKey = os.Getenv("BKASH_APP_KEY")
	if cfg.BkashAppKey == "" {
		missing = append(missing, "BKASH_APP_KEY")
	}

	cfg.BkashAppSecret = os.Getenv("BKASH_APP_SECRET")
	if cfg.BkashAppSecret == "" {
		missing = append(missing, "BKASH_APP_SECRET")
	}

	cfg.BkashUsername = os.Getenv("BKASH_USERNAME")
	if cfg.BkashUsername == "" {
		missing = append(missing, "BKASH_USERNAME")
	}

	cfg.BkashPassword = os.Getenv("BKASH_PASSWORD")
	if cfg.BkashPassword == "" {
		missing = append(missing, "BKASH_PASSWORD")
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GatewayTimeout = getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second)
	cfg.GatewayMaxRetries = getEnvInt("GATEWAY_MAX_RETRIES", 3)
	cfg.AuthDateMaxAge = getEnvDuration("AUTH_DATE_MAX_AGE", 24*time.Hour)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 14)
	cfg.Currency = getEnvString("CURRENCY", "BDT")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitDeposit = getEnvInt("RATE_LIMIT_DEPOSIT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
