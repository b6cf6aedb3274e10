package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	Port     string
	Env      string
	LogLevel string
	Location *time.Location

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Auth
	StaticTokens     string
	JWTHMACSecret    string
	OAuthStateSecret string

	// Google Calendar
	GoogleClientID          string
	GoogleClientSecret      string
	GoogleRedirectURL       string
	CalendarBreakerFailures uint32
	CalendarBreakerTimeout  time.Duration
}

// Load loads configuration from environment variables, reading a .env file
// first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  int32(getIntEnv("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getIntEnv("DB_MIN_CONNS", 1)),

		StaticTokens:     getEnv("STATIC_TOKENS", ""),
		JWTHMACSecret:    getEnv("JWT_HMAC_SECRET", ""),
		OAuthStateSecret: getEnv("OAUTH_STATE_SECRET", ""),

		GoogleClientID:          getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:      getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:       getEnv("GOOGLE_REDIRECT_URL", ""),
		CalendarBreakerFailures: uint32(getIntEnv("CALENDAR_BREAKER_FAILURES", 5)),
		CalendarBreakerTimeout:  getDurationEnv("CALENDAR_BREAKER_TIMEOUT", 30*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL required")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", cfg.DBMinConns, cfg.DBMaxConns)
	}
	if cfg.OAuthStateSecret != "" && cfg.OAuthStateSecret == cfg.JWTHMACSecret {
		return nil, errors.New("OAUTH_STATE_SECRET must differ from JWT_HMAC_SECRET")
	}
	loc, err := time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	cfg.Location = loc

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil && i >= 0 {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
