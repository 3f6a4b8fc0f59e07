package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is loaded once at startup and never mutated afterwards. No component
// reads ambient environment state at call time; everything is injected from
// here at construction.
type Config struct {
	Profile    string
	ServerAddr string

	DatabaseURL string
	RedisAddr   string

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	SaltLength      int
	MaxLoginAttempts int
	LockoutDuration time.Duration

	VerificationTokenTTL  time.Duration
	PasswordResetTokenTTL time.Duration

	AuthRateLimitRPM   int
	APIRateLimitRPM    int
	ForgotRateLimitRPM int
	CORSOrigins        []string

	SessionCleanupInterval time.Duration
	SessionRetention       time.Duration

	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration
}

// Load reads the process environment into an immutable Config. Validation
// and parse failures are reported through the config-validation counter and
// returned to the caller; the process does not start on a bad config.
func Load(ctx context.Context) (*Config, error) {
	cfg, err := load()
	profile := "unknown"
	if cfg != nil {
		profile = cfg.Profile
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	recordConfigValidationEvent(ctx, profile, outcome, classifyConfigLoadError(err))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{
		Profile:            strings.TrimSpace(strings.ToLower(envOr("APP_ENV", "dev"))),
		ServerAddr:         envOr("SERVER_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		AccessTokenSecret:  os.Getenv("AUTH_ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: os.Getenv("AUTH_REFRESH_TOKEN_SECRET"),
		OTELExporterOTLPEndpoint: envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELServiceName:          envOr("OTEL_SERVICE_NAME", "sprintdeck-auth"),
	}

	var err error
	if cfg.AccessTokenTTL, err = durationEnv("AUTH_ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("AUTH_REFRESH_TOKEN_TTL", 168*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.SaltLength, err = intEnv("AUTH_SALT_LENGTH", 16); err != nil {
		return cfg, err
	}
	if cfg.MaxLoginAttempts, err = intEnv("AUTH_MAX_LOGIN_ATTEMPTS", 5); err != nil {
		return cfg, err
	}
	lockoutMS, err := intEnv("AUTH_LOCKOUT_DURATION_MS", 1800000)
	if err != nil {
		return cfg, err
	}
	cfg.LockoutDuration = time.Duration(lockoutMS) * time.Millisecond
	if cfg.VerificationTokenTTL, err = durationEnv("AUTH_VERIFICATION_TOKEN_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.PasswordResetTokenTTL, err = durationEnv("AUTH_PASSWORD_RESET_TOKEN_TTL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.AuthRateLimitRPM, err = intEnv("AUTH_RATE_LIMIT_RPM", 30); err != nil {
		return cfg, err
	}
	if cfg.APIRateLimitRPM, err = intEnv("API_RATE_LIMIT_RPM", 600); err != nil {
		return cfg, err
	}
	if cfg.ForgotRateLimitRPM, err = intEnv("FORGOT_RATE_LIMIT_RPM", 5); err != nil {
		return cfg, err
	}
	cfg.CORSOrigins = splitEnv("CORS_ORIGINS")
	if cfg.SessionCleanupInterval, err = durationEnv("SESSION_CLEANUP_INTERVAL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.SessionRetention, err = durationEnv("SESSION_RETENTION", 720*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsEnabled, err = boolEnv("OTEL_METRICS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELTracingEnabled, err = boolEnv("OTEL_TRACING_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELLogsEnabled, err = boolEnv("OTEL_LOGS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELExporterOTLPInsecure, err = boolEnv("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsExportInterval, err = durationEnv("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second); err != nil {
		return cfg, err
	}
	cfg.OTELEnvironment = envOr("OTEL_ENVIRONMENT", cfg.Profile)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Profile == "prod" {
		if c.DatabaseURL == "" {
			return fmt.Errorf("validate config: DATABASE_URL is required")
		}
		if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
			return fmt.Errorf("validate config: AUTH_ACCESS_TOKEN_SECRET and AUTH_REFRESH_TOKEN_SECRET are required")
		}
	}
	// Dev/test secrets default below, but never coincide: the two token
	// classes must stay unverifiable with each other's secret.
	if c.AccessTokenSecret == "" {
		c.AccessTokenSecret = "dev-access-secret"
	}
	if c.RefreshTokenSecret == "" {
		c.RefreshTokenSecret = "dev-refresh-secret"
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("validate config: access and refresh token secrets must differ")
	}
	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("validate config: AUTH_MAX_LOGIN_ATTEMPTS must be at least 1")
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("validate config: AUTH_LOCKOUT_DURATION_MS must be positive")
	}
	if c.SaltLength < 8 {
		return fmt.Errorf("validate config: AUTH_SALT_LENGTH must be at least 8")
	}
	return nil
}

func splitEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
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

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}
