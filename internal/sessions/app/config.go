package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseFile string // Optional: path to SQLite database file (default: ./mediahub.db)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)
	Port      int    // HTTP server port (default: 8096)

	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	SessionIdleTimeout      time.Duration // Idle sessions older than this are swept (default: 10m)
	ActivityRefreshInterval time.Duration // Token last-activity write-back window (default: 3m)
	HousekeepingInterval    time.Duration // Idle sweep cadence (default: 30s)
	TokenInactivityTimeout  time.Duration // Stale token pruning; 0 disables (default: 0)
}

func LoadConfig() Config {
	return Config{
		DatabaseFile: getEnvOrDefault("MEDIAHUB_DATABASE_FILE", "mediahub.db"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		Port:      getEnvIntOrDefault("PORT", 8096),

		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		SessionIdleTimeout:      getEnvDurationOrDefault("SESSION_IDLE_TIMEOUT", 10*time.Minute),
		ActivityRefreshInterval: getEnvDurationOrDefault("ACTIVITY_REFRESH_INTERVAL", 3*time.Minute),
		HousekeepingInterval:    getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 30*time.Second),
		TokenInactivityTimeout:  getEnvDurationOrDefault("TOKEN_INACTIVITY_TIMEOUT", 0),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer values are read as minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
