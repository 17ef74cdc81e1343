package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the intake service.
type Config struct {
	BindAddr                      string
	ShutdownTimeout               time.Duration
	ConsultationInactivityTimeout time.Duration
	MetricsNamespace              string

	AllowAnyOrigin bool

	NotificationQueueSize int

	LogLevel  string
	LogFormat string

	BackendMode    string
	BackendURL     string
	BackendTimeout time.Duration

	TimeLocale string

	DatabaseURL    string `masq:"secret"`
	AuditRedactPII bool
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "intakedesk"),
		AllowAnyOrigin:        false,
		LogLevel:              envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:             envOrDefault("APP_LOG_FORMAT", "console"),
		BackendMode:           envOrDefault("INTAKE_BACKEND_MODE", "auto"),
		BackendURL:            strings.TrimSuffix(stringsTrimSpace("INTAKE_BACKEND_URL"), "/"),
		TimeLocale:            envOrDefault("INTAKE_TIME_LOCALE", "en-US"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		AuditRedactPII:        true,
		NotificationQueueSize: 32,
		ShutdownTimeout:       15 * time.Second,
		// Matches the backend's own idle expiry.
		ConsultationInactivityTimeout: 15 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConsultationInactivityTimeout, err = durationFromEnv("APP_CONSULTATION_INACTIVITY_TIMEOUT", cfg.ConsultationInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	// 0 leaves the backend call unbounded.
	cfg.BackendTimeout, err = durationFromEnv("INTAKE_BACKEND_TIMEOUT", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.NotificationQueueSize, err = intFromEnv("APP_NOTIFICATION_QUEUE_SIZE", cfg.NotificationQueueSize)
	if err != nil {
		return Config{}, err
	}
	cfg.AuditRedactPII, err = boolFromEnv("AUDIT_REDACT_PII", cfg.AuditRedactPII)
	if err != nil {
		return Config{}, err
	}

	if cfg.ConsultationInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_CONSULTATION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.NotificationQueueSize <= 0 {
		return Config{}, fmt.Errorf("APP_NOTIFICATION_QUEUE_SIZE must be positive")
	}
	if cfg.BackendTimeout < 0 {
		return Config{}, fmt.Errorf("INTAKE_BACKEND_TIMEOUT must be >= 0")
	}
	switch strings.ToLower(cfg.BackendMode) {
	case "auto", "http", "mock":
	default:
		return Config{}, fmt.Errorf("INTAKE_BACKEND_MODE must be one of auto, http, mock")
	}
	if strings.EqualFold(cfg.BackendMode, "http") && cfg.BackendURL == "" {
		return Config{}, fmt.Errorf("INTAKE_BACKEND_URL is required when INTAKE_BACKEND_MODE=http")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
