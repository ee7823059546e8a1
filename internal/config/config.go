package config

import (
	"os"
	"strconv"
	"strings"

	"dating_platform/internal/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppPort     string
	AppVersion  string
	DatabaseURL string
	JWTSecret   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Empty means events are logged and dropped.
	AMQPURL string

	AllowedOrigin string
	LogLevel      string
	LogJSON       bool

	DefaultCurrency     string
	MinWithdrawalAmount decimal.Decimal

	// API limits, per client IP
	APIRateLimit  int
	APIRateWindow int
	// Money-moving endpoints, per user
	PaymentRateLimit  int
	PaymentRateWindow int

	ExpiryJobSchedule string
}

// Load reads configuration from env (and .env if present)
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	cfg := fromEnv()
	cfg.DatabaseURL = dbURL
	cfg.JWTSecret = jwtSecret
	return cfg
}

// fromEnv fills everything that has a default.
func fromEnv() *Config {
	minWithdrawal := decimal.NewFromInt(1)
	if v := os.Getenv("MIN_WITHDRAWAL_AMOUNT"); v != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil && d.IsPositive() {
			minWithdrawal = d.Round(2)
		} else {
			logger.Warn("ignoring invalid MIN_WITHDRAWAL_AMOUNT", "value", v)
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(os.Getenv("DEFAULT_CURRENCY")))
	if currency == "" {
		currency = "USD"
	}

	return &Config{
		AppPort:             envString("APP_PORT", "8080"),
		AppVersion:          envString("APP_VERSION", "dev"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             envInt("REDIS_DB", 0),
		AMQPURL:             os.Getenv("AMQP_URL"),
		AllowedOrigin:       os.Getenv("ALLOWED_ORIGIN"),
		LogLevel:            envString("LOG_LEVEL", "info"),
		LogJSON:             os.Getenv("LOG_JSON") == "true",
		DefaultCurrency:     currency,
		MinWithdrawalAmount: minWithdrawal,
		APIRateLimit:        envInt("API_RATE_LIMIT", 120),
		APIRateWindow:       envInt("API_RATE_WINDOW_SECONDS", 60),
		PaymentRateLimit:    envInt("PAYMENT_RATE_LIMIT", 10),
		PaymentRateWindow:   envInt("PAYMENT_RATE_WINDOW_SECONDS", 60),
		ExpiryJobSchedule:   envString("EXPIRY_JOB_SCHEDULE", "@every 15m"),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
