// internal/config/config.go
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the runtime configuration for the server, resolved from the
// environment (optionally seeded from a .env file).
type Config struct {
	ListenAddr     string // HTTP/WebSocket listen address.
	DatabaseURL    string // Postgres connection string; empty disables persistence.
	RedisAddr      string // Redis address; empty disables the action historian and pub/sub.
	RedisPassword  string
	JWTSecret      string // HMAC secret for session tokens.
	TurnTimeoutSec int    // Default per-turn timeout in seconds.
}

// Load reads .env (if present) and resolves the configuration from the
// environment. Missing optional values fall back to development defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("config: no .env file loaded: %v", err)
	}

	cfg := Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
		TurnTimeoutSec: getEnvInt("TURN_TIMEOUT_SEC", 45),
	}

	if cfg.DatabaseURL == "" {
		logrus.Warn("config: DATABASE_URL not set; session persistence disabled")
	}
	if cfg.RedisAddr == "" {
		logrus.Warn("config: REDIS_ADDR not set; action history and session pub/sub disabled")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.Warnf("config: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
