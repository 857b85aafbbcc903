// Package config provides configuration management for the channel mirror
// daemon. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Transport TransportConfig
	Mirror    MirrorConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration. An empty Host disables the
// transfer audit log.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// TransportConfig holds the platform transport bridge configuration
type TransportConfig struct {
	BridgeURL string
	Timeout   time.Duration
}

// MirrorConfig holds the mirroring engine configuration
type MirrorConfig struct {
	TargetChannel     string
	TransmitMode      string
	TempDir           string
	BackfillItemDelay time.Duration // pacing between backfilled items (platform ToS)
	WatchItemDelay    time.Duration // pacing between newly-arrived items
	PollInterval      time.Duration // watch-mode new-message detection lower bound
	MaxRetries        int
	RetryDelay        time.Duration
	ProgressTTL       time.Duration // lifetime of published backfill progress snapshots
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8000"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "channel_mirror"),
				User:           getEnv("POSTGRES_USER", "mirror"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "channel_mirror"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Transport: TransportConfig{
			BridgeURL: getEnv("TRANSPORT_BRIDGE_URL", "http://localhost:8081"),
			Timeout:   getEnvAsDuration("TRANSPORT_TIMEOUT", 2*time.Minute),
		},
		Mirror: MirrorConfig{
			TargetChannel:     getEnv("TARGET_CHANNEL", ""),
			TransmitMode:      getEnv("TRANSMIT_MODE", "fresh_reupload"),
			TempDir:           getEnv("TEMP_DIR", "temp_media"),
			BackfillItemDelay: getEnvAsDuration("BACKFILL_ITEM_DELAY", 5*time.Second),
			WatchItemDelay:    getEnvAsDuration("WATCH_ITEM_DELAY", 2*time.Second),
			PollInterval:      getEnvAsDuration("POLL_INTERVAL", 10*time.Second),
			MaxRetries:        getEnvAsInt("MAX_RETRIES", 3),
			RetryDelay:        getEnvAsDuration("RETRY_DELAY", 2*time.Second),
			ProgressTTL:       getEnvAsDuration("PROGRESS_TTL", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks the settings the mirroring engine cannot start without.
// LoadConfig does not call it: the migration CLI shares this configuration
// but has no use for mirroring settings.
func (c *MirrorConfig) Validate() error {
	if c.TargetChannel == "" {
		return fmt.Errorf("TARGET_CHANNEL is required")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
