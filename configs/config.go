package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var loadEnvOnce sync.Once

func loadEnv() {
	loadEnvOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})
}

// Config returns the raw value of key, loading .env on first use.
func Config(key string) string {
	loadEnv()
	return os.Getenv(key)
}

// GetEnv returns the value of key or defaultValue when unset.
func GetEnv(key, defaultValue string) string {
	if value := Config(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value := Config(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := Config(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func GetEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := Config(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func GetEnvList(key string) []string {
	raw := Config(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetLogLevel maps LOG_LEVEL to a logrus level, defaulting to info.
func GetLogLevel() logrus.Level {
	switch strings.ToLower(Config("LOG_LEVEL")) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

type AppConfig struct {
	Port        string
	DatabaseURL string
	StoreDriver string
	RedisURL    string
	JWTSecret   string

	AdminEmail    string
	AdminPassword string
	AdminFullName string

	SettlementSchedule    string
	SettlementConcurrency int
	SettlementWindow      time.Duration
	StoreTimeout          time.Duration
	TransferTimeout       time.Duration
	EmailTimeout          time.Duration
	ReviewThreshold       decimal.Decimal
	Currency              string

	TransferProvider   string
	PayPalAPIBaseURL   string
	PayPalClientID     string
	PayPalClientSecret string
	StripeSecretKey    string

	BrevoAPIKey     string
	EmailSender     string
	EmailSenderName string

	KafkaBrokers []string
	KafkaTopic   string

	CloudinaryURL string
}

// Load reads the full application configuration from the environment.
func Load() AppConfig {
	return AppConfig{
		Port:        GetEnv("PORT", "8080"),
		DatabaseURL: Config("DATABASE_URL"),
		StoreDriver: GetEnv("STORE_DRIVER", "postgres"),
		RedisURL:    Config("REDIS_URL"),
		JWTSecret:   Config("JWT_SECRET"),

		AdminEmail:    Config("ADMIN_EMAIL"),
		AdminPassword: Config("ADMIN_PASSWORD"),
		AdminFullName: GetEnv("ADMIN_FULL_NAME", "Payout Admin"),

		SettlementSchedule:    GetEnv("SETTLEMENT_SCHEDULE", "0 2 * * 1"),
		SettlementConcurrency: GetEnvInt("SETTLEMENT_CONCURRENCY", 4),
		SettlementWindow:      GetEnvDuration("SETTLEMENT_WINDOW", 7*24*time.Hour),
		StoreTimeout:          GetEnvDuration("STORE_TIMEOUT", 5*time.Second),
		TransferTimeout:       GetEnvDuration("TRANSFER_TIMEOUT", 30*time.Second),
		EmailTimeout:          GetEnvDuration("EMAIL_TIMEOUT", 10*time.Second),
		ReviewThreshold:       GetEnvDecimal("REVIEW_THRESHOLD", decimal.NewFromInt(10000)),
		Currency:              GetEnv("PAYOUT_CURRENCY", "INR"),

		TransferProvider:   GetEnv("TRANSFER_PROVIDER", "simulated"),
		PayPalAPIBaseURL:   GetEnv("PAYPAL_API_BASE_URL", "https://api-m.sandbox.paypal.com"),
		PayPalClientID:     Config("PAYPAL_CLIENT_ID"),
		PayPalClientSecret: Config("PAYPAL_CLIENT_SECRET"),
		StripeSecretKey:    Config("STRIPE_SECRET_KEY"),

		BrevoAPIKey:     Config("BREVO_API_KEY"),
		EmailSender:     Config("EMAIL_SENDER"),
		EmailSenderName: GetEnv("EMAIL_SENDER_NAME", "PayoutSync Team"),

		KafkaBrokers: GetEnvList("KAFKA_BROKERS"),
		KafkaTopic:   GetEnv("KAFKA_AUDIT_TOPIC", "payout-audit-events"),

		CloudinaryURL: Config("CLOUDINARY_URL"),
	}
}
