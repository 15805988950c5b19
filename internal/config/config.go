// Package config provides configuration loading for the ingest engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// EngineConfig holds sync engine configuration.
type EngineConfig struct {
	// Graph store settings
	DatabaseURL string

	// Source pacing
	RatePerSecond float64
	RateBurst     int

	// Batch pipeline settings
	FileBatchSize    int
	MessageBatchSize int

	// TTLs
	AccessURLTTL     time.Duration
	IdentityCacheTTL time.Duration

	// Logging
	LogLevel string
}

// LoadEngineConfig loads configuration from environment.
func LoadEngineConfig() *EngineConfig {
	return &EngineConfig{
		DatabaseURL:      getEnv("INGEST_DATABASE_URL", ""),
		RatePerSecond:    getEnvFloat("INGEST_RATE_PER_SECOND", 50),
		RateBurst:        getEnvInt("INGEST_RATE_BURST", 10),
		FileBatchSize:    getEnvInt("INGEST_FILE_BATCH_SIZE", 100),
		MessageBatchSize: getEnvInt("INGEST_MESSAGE_BATCH_SIZE", 50),
		AccessURLTTL:     getEnvDuration("INGEST_ACCESS_URL_TTL", time.Hour),
		IdentityCacheTTL: getEnvDuration("INGEST_IDENTITY_CACHE_TTL", 15*time.Minute),
		LogLevel:         getEnv("INGEST_LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
