// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"fraud_detector/internal/ingest"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string
	LogFormat   string // "json" or "text"

	IngestMode         ingest.Mode
	DefaultCreditLimit decimal.Decimal

	BatchSecret     string // empty disables batch signature checks
	AlertMinReasons int
	AlertWorkers    int
}

const (
	DefaultHTTPAddr        = ":8080"
	DefaultMetricsAddr     = ":9090"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultIngestMode      = string(ingest.ModeLenient)
	DefaultCreditLimit     = "5000"
	DefaultAlertMinReasons = 2
	DefaultAlertWorkers    = 3
)

// Reference data loaded into the store at startup.
var (
	SeedFraudMerchants = []string{"ScamStore", "FakeElectronics", "ShadyBank"}

	SeedWhitelistMerchants = []string{
		"Amazon", "Walmart", "BestBuy", "Target", "Apple Store",
		"Netflix", "McDonald's", "Uber", "eBay",
	}

	SeedCreditLimits = map[string]decimal.Decimal{
		"U123": decimal.NewFromInt(10000),
		"U234": decimal.NewFromInt(5000),
		"U345": decimal.NewFromInt(7000),
		"U456": decimal.NewFromInt(15000),
	}
)

// Load reads configuration from environment variables. A .env file is loaded
// first if present, for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	mode, err := ingest.ParseMode(getEnv("INGEST_MODE", DefaultIngestMode))
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_MODE: %w", err)
	}

	limit, err := decimal.NewFromString(getEnv("DEFAULT_CREDIT_LIMIT", DefaultCreditLimit))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_CREDIT_LIMIT: %w", err)
	}

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", DefaultHTTPAddr),
		MetricsAddr:        getEnv("METRICS_ADDR", DefaultMetricsAddr),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		IngestMode:         mode,
		DefaultCreditLimit: limit,
		BatchSecret:        os.Getenv("BATCH_SECRET"),
		AlertMinReasons:    getEnvInt("ALERT_MIN_REASONS", DefaultAlertMinReasons),
		AlertWorkers:       getEnvInt("ALERT_WORKERS", DefaultAlertWorkers),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DefaultCreditLimit.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("DEFAULT_CREDIT_LIMIT must be positive")
	}
	if c.AlertMinReasons < 1 {
		return fmt.Errorf("ALERT_MIN_REASONS must be at least 1")
	}
	if c.AlertWorkers < 1 {
		return fmt.Errorf("ALERT_WORKERS must be at least 1")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
