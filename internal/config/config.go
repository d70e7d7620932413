package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Store drivers.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	StoreDriver   string
	CartTTL       time.Duration
	CartKeyPrefix string
	CartLockTTL   time.Duration
	// LockRetryBackoff is the pause between attempts to take a cart lock.
	LockRetryBackoff time.Duration
	LockMaxWait      time.Duration
	// AdditivePercentages switches new rows to the additive percentage mode
	// (CART_PERCENTAGE_MODE=additive). The default, legacy, keeps the last rule's percentage.
	AdditivePercentages bool

	FormatDecimals           int
	FormatDecimalPoint       string
	FormatThousandsSeparator string
	FormatLocale             string

	IdempotencyTTL  time.Duration
	RateLimitDriver string
	RateLimitWindow time.Duration
	RateLimitMax    int

	EventsQueueEnabled  bool
	EventsQueueName     string
	EventsQueueMaxRetry int
	WorkerConcurrency   int
	ActivityKey         string
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
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		StoreDriver:         strings.ToLower(valueOrDefault(k.String("STORE_DRIVER"), StoreRedis)),
		CartTTL:             parseDuration(k.String("CART_TTL"), "168h"),
		CartKeyPrefix:       valueOrDefault(k.String("CART_KEY_PREFIX"), "toko"),
		CartLockTTL:         parseDuration(k.String("CART_LOCK_TTL"), "5s"),
		LockRetryBackoff:    parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),
		LockMaxWait:         parseDuration(k.String("LOCK_MAX_WAIT"), "3s"),
		AdditivePercentages: strings.EqualFold(strings.TrimSpace(k.String("CART_PERCENTAGE_MODE")), "additive"),

		FormatDecimals:           parseInt(k.String("FORMAT_DECIMALS"), 2),
		FormatDecimalPoint:       valueOrDefault(k.String("FORMAT_DECIMAL_POINT"), ","),
		FormatThousandsSeparator: valueOrDefault(k.String("FORMAT_THOUSANDS_SEPARATOR"), "."),
		FormatLocale:             strings.TrimSpace(k.String("FORMAT_LOCALE")),

		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitDriver: strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_DRIVER"), "sliding")),
		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT"), 120),

		EventsQueueEnabled:  parseBool(k.String("EVENTS_QUEUE_ENABLED")),
		EventsQueueName:     valueOrDefault(k.String("EVENTS_QUEUE_NAME"), "cart-events"),
		EventsQueueMaxRetry: parseInt(k.String("EVENTS_QUEUE_MAX_RETRY"), 5),
		WorkerConcurrency:   parseInt(k.String("WORKER_CONCURRENCY"), 4),
		ActivityKey:         strings.TrimSpace(k.String("CART_ACTIVITY_KEY")),
	}
	if cfg.ActivityKey == "" {
		cfg.ActivityKey = cfg.CartKeyPrefix + ":cart:activity"
	}

	switch cfg.StoreDriver {
	case StoreRedis, StoreMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER %q is not supported", cfg.StoreDriver)
	}
	if cfg.StoreDriver == StoreRedis && cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.EventsQueueEnabled && cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required when EVENTS_QUEUE_ENABLED is set")
	}
	if cfg.FormatDecimals < 0 {
		return nil, errors.New("FORMAT_DECIMALS must not be negative")
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

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
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
