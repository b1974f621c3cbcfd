package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type HTTPConfig struct {
	Addr        string
	CORSOrigins string
}

type GRPCConfig struct {
	Addr string
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type AppConfig struct {
	ServiceName    string
	Env            string
	LogLevel       string
	HTTP           HTTPConfig
	GRPC           GRPCConfig
	DatabaseURL    string
	RedisURL       string
	NATSURL        string
	JWTSecret      string
	RateLimit      RateLimitConfig
	IdempotencyTTL time.Duration
}

// IsProduction reports whether in-memory fallbacks are forbidden.
func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real env vars win.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		ServiceName: env("SERVICE_NAME"),
		Env:         strings.ToLower(env("APP_ENV")),
		LogLevel:    env("LOG_LEVEL"),
		HTTP: HTTPConfig{
			Addr:        env("HTTP_ADDR"),
			CORSOrigins: env("CORS_ALLOWED_ORIGINS"),
		},
		GRPC:        GRPCConfig{Addr: env("GRPC_ADDR")},
		DatabaseURL: env("DATABASE_URL"),
		RedisURL:    env("REDIS_URL"),
		NATSURL:     env("NATS_URL"),
		JWTSecret:   env("JWT_SECRET"),
		RateLimit: RateLimitConfig{
			Limit:  envInt("RATE_LIMIT", 10),
			Window: envDuration("RATE_LIMIT_WINDOW", 10*time.Second),
		},
		IdempotencyTTL: envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.IsProduction() {
		if cfg.DatabaseURL == "" {
			return AppConfig{}, errors.New("DATABASE_URL is required in production")
		}
		if cfg.JWTSecret == "" {
			return AppConfig{}, errors.New("JWT_SECRET is required in production")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, fallback int) int {
	v := env(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := env(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
