// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Redis connection string (optional, disables read cache if not set)

	// Risk analysis settings
	RiskCalculatorURL  string // External scoring endpoint (required)
	RiskAlertThreshold int    // Minimum score that produces an alert
	RiskHighThreshold  int    // Score at which an alert becomes high_risk
	RiskPaceMS         int    // Pause between contacts during a bulk run, in milliseconds

	// Billing
	StripeAPIKey string // Optional; enables discount coupons on recovery actions

	// Security
	WebhookSecret string
	RateLimitRPS  int
	AdminSecret   string // Admin API secret

	// Observability
	OTLPEndpoint string // OTLP/gRPC trace collector (optional)
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultAlertThreshold = 70
	DefaultHighThreshold  = 80
	DefaultPaceMS         = 100
	DefaultRateLimit      = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:           os.Getenv("REDIS_URL"),
		RiskCalculatorURL:  os.Getenv("RISK_CALCULATOR_URL"), // Required, no default
		RiskAlertThreshold: int(getEnvInt64("RISK_ALERT_THRESHOLD", DefaultAlertThreshold)),
		RiskHighThreshold:  int(getEnvInt64("RISK_HIGH_THRESHOLD", DefaultHighThreshold)),
		RiskPaceMS:         int(getEnvInt64("RISK_PACE_MS", DefaultPaceMS)),
		StripeAPIKey:       os.Getenv("STRIPE_API_KEY"),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPS:       int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.RiskCalculatorURL == "" {
		return fmt.Errorf("RISK_CALCULATOR_URL is required")
	}

	if c.RiskAlertThreshold < 0 || c.RiskAlertThreshold > 100 {
		return fmt.Errorf("RISK_ALERT_THRESHOLD must be in [0,100]")
	}
	if c.RiskHighThreshold < c.RiskAlertThreshold || c.RiskHighThreshold > 100 {
		return fmt.Errorf("RISK_HIGH_THRESHOLD must be in [RISK_ALERT_THRESHOLD,100]")
	}

	if c.RiskPaceMS < 0 {
		return fmt.Errorf("RISK_PACE_MS must be non-negative")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
