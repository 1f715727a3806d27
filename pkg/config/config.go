// pkg/config/config.go
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Tenant directory
	TenantSeedFile string // YAML seed for the in-memory directory (dev)

	// Token service
	JWTDefaultTTL time.Duration

	// CSRF service
	CSRFTTL     time.Duration
	LockTimeout time.Duration

	// Rate limiting / lockout
	RateLimitPerMinute int
	LockoutThreshold   int
	LockoutWindow      time.Duration

	// Tracing
	OTLPEndpoint string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	return Config{
		Env:                env("EVENTGATE_ENV", "dev"),
		HTTPAddr:           env("EVENTGATE_HTTP_ADDR", ":8080"),
		TenantSeedFile:     env("TENANT_SEED_FILE", ""),
		JWTDefaultTTL:      envDur("JWT_DEFAULT_TTL_SEC", 3600) * time.Second,
		CSRFTTL:            envDur("CSRF_TTL_SEC", 3600) * time.Second,
		LockTimeout:        envDur("CSRF_LOCK_TIMEOUT_SEC", 5) * time.Second,
		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		LockoutThreshold:   envInt("LOCKOUT_THRESHOLD", 5),
		LockoutWindow:      envDur("LOCKOUT_WINDOW_SEC", 900) * time.Second,
		OTLPEndpoint:       env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		RedisURL:           env("REDIS_URL", ""),
		DatabaseURL:        env("DATABASE_URL", ""),
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	return time.Duration(envInt(k, def))
}
