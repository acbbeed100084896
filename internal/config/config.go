package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the monitoring daemon.
type Config struct {
	BindAddr        string
	ShutdownTimeout time.Duration

	BackendURL     string
	BackendTimeout time.Duration

	TaskPollInterval    time.Duration
	MessagePollInterval time.Duration
	PollBackoffMax      time.Duration

	SessionInactivityTimeout time.Duration

	DatabaseURL      string
	MetricsNamespace string
	AllowAnyOrigin   bool
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("NUMERA_BIND_ADDR", "127.0.0.1:5042"),
		BackendURL:               envOrDefault("NUMERA_BACKEND_URL", "http://127.0.0.1:4242/api/1"),
		DatabaseURL:              stringsTrimSpace("NUMERA_DATABASE_URL"),
		MetricsNamespace:         envOrDefault("NUMERA_METRICS_NAMESPACE", "numera"),
		AllowAnyOrigin:           false,
		ShutdownTimeout:          15 * time.Second,
		BackendTimeout:           30 * time.Second,
		TaskPollInterval:         4 * time.Second,
		MessagePollInterval:      30 * time.Second,
		PollBackoffMax:           2 * time.Minute,
		SessionInactivityTimeout: 30 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("NUMERA_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BackendTimeout, err = durationFromEnv("NUMERA_BACKEND_TIMEOUT", cfg.BackendTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TaskPollInterval, err = durationFromEnv("NUMERA_TASK_POLL_INTERVAL", cfg.TaskPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.MessagePollInterval, err = durationFromEnv("NUMERA_MESSAGE_POLL_INTERVAL", cfg.MessagePollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.PollBackoffMax, err = durationFromEnv("NUMERA_POLL_BACKOFF_MAX", cfg.PollBackoffMax)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("NUMERA_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("NUMERA_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	u, err := url.Parse(cfg.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("NUMERA_BACKEND_URL must be an absolute URL")
	}
	if cfg.TaskPollInterval < 100*time.Millisecond {
		return Config{}, fmt.Errorf("NUMERA_TASK_POLL_INTERVAL must be at least 100ms")
	}
	if cfg.MessagePollInterval < time.Second {
		return Config{}, fmt.Errorf("NUMERA_MESSAGE_POLL_INTERVAL must be at least 1s")
	}
	if cfg.PollBackoffMax < cfg.TaskPollInterval {
		return Config{}, fmt.Errorf("NUMERA_POLL_BACKOFF_MAX must cover the task poll interval")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("NUMERA_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
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
