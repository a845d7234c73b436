package config

import (
	"os"
	"runtime"
	"strconv"

	"permtest/internal"
	"permtest/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Engine  EngineConfig
	Server  ServerConfig
	Logging LoggingConfig
}

// EngineConfig holds defaults for permutation test runs
type EngineConfig struct {
	Permutations        int
	Workers             int
	Seed                int64
	MaxExactAssignments int
	MaxPermutations     int
	ProgressStride      int
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level internal.LogLevel
}

// Default values used when the environment does not override them
const (
	DefaultPermutations        = 10000
	DefaultMaxExactAssignments = 10_000_000
	DefaultMaxPermutations     = 10_000_000
)

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Engine:  *loadEngineConfig(),
		Server:  *loadServerConfig(),
		Logging: LoggingConfig{Level: internal.ParseLogLevel(os.Getenv("LOG_LEVEL"))},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadEngineConfig() *EngineConfig {
	return &EngineConfig{
		Permutations:        getEnvIntOrDefault("PERMTEST_PERMUTATIONS", DefaultPermutations),
		Workers:             getEnvIntOrDefault("PERMTEST_WORKERS", runtime.NumCPU()),
		Seed:                getEnvInt64OrDefault("PERMTEST_SEED", 0),
		MaxExactAssignments: getEnvIntOrDefault("PERMTEST_MAX_EXACT", DefaultMaxExactAssignments),
		MaxPermutations:     getEnvIntOrDefault("PERMTEST_MAX_PERMUTATIONS", DefaultMaxPermutations),
		ProgressStride:      getEnvIntOrDefault("PERMTEST_PROGRESS", 0),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func validateConfig(config *Config) error {
	if config.Engine.Permutations < 1 {
		return errors.ConfigInvalid("PERMTEST_PERMUTATIONS must be a positive integer")
	}
	if config.Engine.Workers < 1 {
		return errors.ConfigInvalid("PERMTEST_WORKERS must be a positive integer")
	}
	if config.Engine.MaxExactAssignments < 1 {
		return errors.ConfigInvalid("PERMTEST_MAX_EXACT must be a positive integer")
	}
	if config.Engine.MaxPermutations < 1 {
		return errors.ConfigInvalid("PERMTEST_MAX_PERMUTATIONS must be a positive integer")
	}
	if config.Engine.Permutations > config.Engine.MaxPermutations {
		return errors.ConfigInvalid("PERMTEST_PERMUTATIONS must not exceed PERMTEST_MAX_PERMUTATIONS")
	}
	if config.Engine.ProgressStride < 0 {
		return errors.ConfigInvalid("PERMTEST_PROGRESS must not be negative")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
