package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port          string
	MongoURI      string
	MongoDatabase string
	RedisAddress  string
	RedisPassword string
	JWTSecret     string
	StoreTimeout  time.Duration
	IssueRateMax  int
	LogLevel      slog.Level
}

// Load reads configuration from the environment. Missing values fall
// back to development defaults; the JWT secret is the only hard
// requirement and is checked by the caller.
func Load() Config {
	cfg := Config{
		Port:          getenv("PORT", "8080"),
		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: getenv("MONGODB_DATABASE", "civicfeed"),
		RedisAddress:  os.Getenv("REDIS_ADDRESS"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		StoreTimeout:  10 * time.Second,
		IssueRateMax:  20,
		LogLevel:      slog.LevelInfo,
	}

	if raw := os.Getenv("STORE_TIMEOUT_SECONDS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.StoreTimeout = time.Duration(n) * time.Second
		}
	}
	if raw := os.Getenv("ISSUE_RATE_LIMIT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.IssueRateMax = n
		}
	}
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
