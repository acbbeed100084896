package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != "127.0.0.1:5042" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.TaskPollInterval != 4*time.Second {
		t.Fatalf("TaskPollInterval = %v, want 4s", cfg.TaskPollInterval)
	}
	if cfg.MessagePollInterval != 30*time.Second {
		t.Fatalf("MessagePollInterval = %v, want 30s", cfg.MessagePollInterval)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("NUMERA_BACKEND_URL", "http://localhost:9000/api/1")
	t.Setenv("NUMERA_TASK_POLL_INTERVAL", "250ms")
	t.Setenv("NUMERA_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BackendURL != "http://localhost:9000/api/1" {
		t.Fatalf("BackendURL = %q, want explicit value", cfg.BackendURL)
	}
	if cfg.TaskPollInterval != 250*time.Millisecond {
		t.Fatalf("TaskPollInterval = %v, want 250ms", cfg.TaskPollInterval)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatal("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"relative backend url", "NUMERA_BACKEND_URL", "not a url"},
		{"task interval too small", "NUMERA_TASK_POLL_INTERVAL", "10ms"},
		{"message interval too small", "NUMERA_MESSAGE_POLL_INTERVAL", "100ms"},
		{"unparsable duration", "NUMERA_SHUTDOWN_TIMEOUT", "soon"},
		{"unparsable bool", "NUMERA_ALLOW_ANY_ORIGIN", "maybe"},
		{"backoff below interval", "NUMERA_POLL_BACKOFF_MAX", "1s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() accepted %s=%q", tc.key, tc.value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"NUMERA_BIND_ADDR",
		"NUMERA_SHUTDOWN_TIMEOUT",
		"NUMERA_BACKEND_URL",
		"NUMERA_BACKEND_TIMEOUT",
		"NUMERA_TASK_POLL_INTERVAL",
		"NUMERA_MESSAGE_POLL_INTERVAL",
		"NUMERA_POLL_BACKOFF_MAX",
		"NUMERA_SESSION_INACTIVITY_TIMEOUT",
		"NUMERA_DATABASE_URL",
		"NUMERA_METRICS_NAMESPACE",
		"NUMERA_ALLOW_ANY_ORIGIN",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
