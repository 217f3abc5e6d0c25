package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config holds the runtime settings of the API.
type Config struct {
	Port             int
	Storage          string
	DatabasePath     string
	Timezone         string
	LogLevel         string
	UrgentWindowDays int
}

// LoadConfig reads the configuration from the environment. A .env file is
// loaded first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnvInt("PORT", 8080),
		Storage:          getEnvString("STORAGE", StorageSQLite),
		DatabasePath:     getEnvString("DATABASE_PATH", "loanboard.db"),
		Timezone:         getEnvString("TIMEZONE", "America/Sao_Paulo"),
		LogLevel:         getEnvString("LOG_LEVEL", "info"),
		UrgentWindowDays: getEnvInt("URGENT_WINDOW_DAYS", 3),
	}

	if cfg.Storage != StorageSQLite && cfg.Storage != StorageMemory {
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
	if cfg.UrgentWindowDays < 0 {
		return nil, fmt.Errorf("URGENT_WINDOW_DAYS must not be negative")
	}
	return cfg, nil
}

// Location resolves the configured civil timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
