package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable of the service. Signing secrets and TTLs are
// injected into their components at construction; nothing reads the
// environment after Load returns.
type Config struct {
	Profile  string
	HTTPAddr string

	DatabaseURL string

	JWTIssuer      string
	JWTSecret      string
	AccessTokenTTL time.Duration

	SessionTokenTTL       time.Duration
	SessionPruneInterval  time.Duration
	SessionPruneRetention time.Duration

	RefreshCookieName string
	CookiePath        string
	CookieSecure      bool

	AuthRateLimit  int
	AuthRateWindow time.Duration

	NegativeLookupCacheMode string
	NegativeLookupCacheTTL  time.Duration
	RedisAddr               string
	RedisPassword           string

	LogLevelName string

	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
}

const (
	CacheModeOff    = "off"
	CacheModeMemory = "memory"
	CacheModeRedis  = "redis"
)

func Load() (*Config, error) {
	cfg, err := load()
	recordConfigValidationEvent(context.Background(), profileOf(cfg), outcomeOf(err), classifyConfigLoadError(err))
	return cfg, err
}

func load() (*Config, error) {
	cfg := &Config{
		Profile:                  getEnv("APP_PROFILE", "dev"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		JWTIssuer:                getEnv("JWT_ISSUER", "auth-session-service"),
		JWTSecret:                os.Getenv("JWT_SECRET"),
		RefreshCookieName:        getEnv("REFRESH_COOKIE_NAME", "refresh_token"),
		CookiePath:               getEnv("COOKIE_PATH", "/api/v1/auth"),
		NegativeLookupCacheMode:  getEnv("NEGATIVE_LOOKUP_CACHE", CacheModeMemory),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		LogLevelName:             getEnv("LOG_LEVEL", "info"),
		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "auth-session-service"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", "dev"),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.AccessTokenTTL, err = getDuration("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.SessionTokenTTL, err = getDuration("SESSION_TOKEN_TTL", 30*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.SessionPruneInterval, err = getDuration("SESSION_PRUNE_INTERVAL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.SessionPruneRetention, err = getDuration("SESSION_PRUNE_RETENTION", 30*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.NegativeLookupCacheTTL, err = getDuration("NEGATIVE_LOOKUP_CACHE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsExportInterval, err = getDuration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.AuthRateLimit, err = getInt("AUTH_RATE_LIMIT", 20); err != nil {
		return cfg, err
	}
	if cfg.AuthRateWindow, err = getDuration("AUTH_RATE_WINDOW", time.Minute); err != nil {
		return cfg, err
	}
	if cfg.CookieSecure, err = getBool("COOKIE_SECURE", cfg.Profile != "dev"); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsEnabled, err = getBool("OTEL_METRICS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELTracesEnabled, err = getBool("OTEL_TRACES_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELLogsEnabled, err = getBool("OTEL_LOGS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELExporterOTLPInsecure, err = getBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("validate config: DATABASE_URL is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("validate config: JWT_SECRET must be at least 32 characters")
	}
	if c.AccessTokenTTL <= 0 || c.SessionTokenTTL <= 0 {
		return fmt.Errorf("validate config: token TTLs must be positive")
	}
	switch c.NegativeLookupCacheMode {
	case CacheModeOff, CacheModeMemory, CacheModeRedis:
	default:
		return fmt.Errorf("validate config: NEGATIVE_LOOKUP_CACHE must be off, memory or redis")
	}
	if c.NegativeLookupCacheMode == CacheModeRedis && c.RedisAddr == "" {
		return fmt.Errorf("validate config: REDIS_ADDR is required when NEGATIVE_LOOKUP_CACHE=redis")
	}
	return nil
}

func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.LogLevelName) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func profileOf(c *Config) string {
	if c == nil {
		return ""
	}
	return c.Profile
}

func outcomeOf(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
