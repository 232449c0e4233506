// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"slotmine/pkg/db"
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string
	Currency   string
	DB         db.Config

	// RedisURL selects the Redis cache backend; empty falls back to the
	// in-process cache.
	RedisURL string
	// CacheTTL bounds staleness of the projected-earnings aggregate. It is
	// kept in seconds because displayed earnings are near-real-time.
	CacheTTL time.Duration

	// Expiry batch processor tuning.
	ExpiryInterval     time.Duration
	ExpiryBatchSize    int
	ExpiryBatchTimeout time.Duration
	ExpirySoonWindow   time.Duration

	// Accrual persistence job tuning.
	CheckpointInterval  time.Duration
	CheckpointBatchSize int
	// CheckpointThreshold is the materiality floor: virtual deltas below it
	// are not worth a write.
	CheckpointThreshold decimal.Decimal

	// Claim behavior.
	MinClaimAmount   decimal.Decimal
	ClaimLockTimeout time.Duration
	// CloseSlotOnClaim decides whether a claimed-but-not-expired slot stays
	// active and keeps accruing (false) or closes on claim (true).
	CloseSlotOnClaim bool
}

// LoadConfig loads configuration from environment variables.
// It returns an AppConfig instance or an error if any variable is invalid.
func LoadConfig() (*AppConfig, error) {
	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	cacheTTL, err := parseDurationEnv("CACHE_TTL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	expiryInterval, err := parseDurationEnv("EXPIRY_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRY_INTERVAL: %w", err)
	}
	expiryBatchSize, err := parseIntEnv("EXPIRY_BATCH_SIZE", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRY_BATCH_SIZE: %w", err)
	}
	expiryBatchTimeout, err := parseDurationEnv("EXPIRY_BATCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRY_BATCH_TIMEOUT: %w", err)
	}
	expirySoonWindow, err := parseDurationEnv("EXPIRY_SOON_WINDOW", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRY_SOON_WINDOW: %w", err)
	}
	checkpointInterval, err := parseDurationEnv("CHECKPOINT_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid CHECKPOINT_INTERVAL: %w", err)
	}
	checkpointBatchSize, err := parseIntEnv("CHECKPOINT_BATCH_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid CHECKPOINT_BATCH_SIZE: %w", err)
	}
	checkpointThreshold, err := parseDecimalEnv("CHECKPOINT_THRESHOLD", "0.0001")
	if err != nil {
		return nil, fmt.Errorf("invalid CHECKPOINT_THRESHOLD: %w", err)
	}
	minClaimAmount, err := parseDecimalEnv("MIN_CLAIM_AMOUNT", "0.00000001")
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_CLAIM_AMOUNT: %w", err)
	}
	claimLockTimeout, err := parseDurationEnv("CLAIM_LOCK_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid CLAIM_LOCK_TIMEOUT: %w", err)
	}
	closeSlotOnClaim, err := parseBoolEnv("CLOSE_SLOT_ON_CLAIM", false)
	if err != nil {
		return nil, fmt.Errorf("invalid CLOSE_SLOT_ON_CLAIM: %w", err)
	}

	cfg := &AppConfig{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		Currency:   getEnv("CURRENCY", "COIN"),
		DB: db.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "slotminedb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisURL:            getEnv("REDIS_URL", ""),
		CacheTTL:            cacheTTL,
		ExpiryInterval:      expiryInterval,
		ExpiryBatchSize:     expiryBatchSize,
		ExpiryBatchTimeout:  expiryBatchTimeout,
		ExpirySoonWindow:    expirySoonWindow,
		CheckpointInterval:  checkpointInterval,
		CheckpointBatchSize: checkpointBatchSize,
		CheckpointThreshold: checkpointThreshold,
		MinClaimAmount:      minClaimAmount,
		ClaimLockTimeout:    claimLockTimeout,
		CloseSlotOnClaim:    closeSlotOnClaim,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// validate checks that the configuration is internally consistent.
func (c *AppConfig) validate() error {
	if c.ExpiryBatchSize < 1 {
		return fmt.Errorf("EXPIRY_BATCH_SIZE must be at least 1")
	}
	if c.CheckpointBatchSize < 1 {
		return fmt.Errorf("CHECKPOINT_BATCH_SIZE must be at least 1")
	}
	if c.CheckpointThreshold.IsNegative() {
		return fmt.Errorf("CHECKPOINT_THRESHOLD must not be negative")
	}
	if c.MinClaimAmount.IsNegative() {
		return fmt.Errorf("MIN_CLAIM_AMOUNT must not be negative")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	return nil
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable with a default value
func parseIntEnv(key string, defaultValue int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(str)
}

// parseBoolEnv parses a boolean environment variable with a default value
func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(str)
}

// parseDurationEnv parses a duration environment variable with a default value
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(str)
}

// parseDecimalEnv parses a decimal environment variable with a default value
func parseDecimalEnv(key, defaultValue string) (decimal.Decimal, error) {
	str := os.Getenv(key)
	if str == "" {
		str = defaultValue
	}
	return decimal.NewFromString(str)
}
