package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/groupbuy-api/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	PricingTiers        pricing.Table
	OrderDeadline       time.Time
	QuantityStep        int64
	EnforceQuantityStep bool

	IdempotencyTTL    time.Duration
	RateLimitWindow   time.Duration
	RateLimitMax      int64
	ReconcileInterval time.Duration
	SeedRetryInitial  time.Duration
	SeedRetryMax      time.Duration
	LiveHeartbeat     time.Duration
	BodyLimitBytes    int64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		QuantityStep:        int64(k.Int("ORDER_QUANTITY_STEP")),
		EnforceQuantityStep: parseBool(k.String("ORDER_ENFORCE_QUANTITY_STEP")),

		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWindow:   parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:      int64(k.Int("RATE_LIMIT_MAX")),
		ReconcileInterval: parseDuration(k.String("RECONCILE_INTERVAL"), "5m"),
		SeedRetryInitial:  parseDuration(k.String("SEED_RETRY_INITIAL"), "1s"),
		SeedRetryMax:      parseDuration(k.String("SEED_RETRY_MAX"), "30s"),
		LiveHeartbeat:     parseDuration(k.String("LIVE_HEARTBEAT"), "15s"),
		BodyLimitBytes:    int64(k.Int("HTTP_BODY_LIMIT_BYTES")),
	}

	if cfg.QuantityStep <= 0 {
		cfg.QuantityStep = 10
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 5
	}
	if cfg.BodyLimitBytes <= 0 {
		cfg.BodyLimitBytes = 64 << 10
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	deadlineRaw := strings.TrimSpace(k.String("ORDER_DEADLINE"))
	if deadlineRaw == "" {
		return nil, errors.New("ORDER_DEADLINE is required (RFC3339)")
	}
	deadline, err := time.Parse(time.RFC3339, deadlineRaw)
	if err != nil {
		return nil, fmt.Errorf("parse ORDER_DEADLINE: %w", err)
	}
	cfg.OrderDeadline = deadline

	tiersRaw := strings.TrimSpace(k.String("PRICING_TIERS"))
	if tiersRaw == "" {
		cfg.PricingTiers = pricing.Default()
	} else {
		table, err := pricing.ParseTable(tiersRaw)
		if err != nil {
			return nil, fmt.Errorf("parse PRICING_TIERS: %w", err)
		}
		cfg.PricingTiers = table
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
