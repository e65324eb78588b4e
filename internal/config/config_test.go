package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYSLINK_HOSTNAME", "desk-01")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Hostname != "desk-01" {
		t.Fatalf("expected hostname desk-01, got %q", cfg.Hostname)
	}
	if cfg.ConfigPath != "config.json" {
		t.Fatalf("expected default config path, got %q", cfg.ConfigPath)
	}
	if cfg.CleanupInterval != time.Hour || cfg.CleanupRetry != 5*time.Minute {
		t.Fatalf("unexpected cleanup cadence: %s / %s", cfg.CleanupInterval, cfg.CleanupRetry)
	}
	if cfg.AlertBufferSize != 64 {
		t.Fatalf("expected alert buffer 64, got %d", cfg.AlertBufferSize)
	}
	if cfg.TLSEnabled() {
		t.Fatalf("tls must be off without cert and key")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYSLINK_LOG_LEVEL", "DEBUG")
	t.Setenv("SYSLINK_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("SYSLINK_LOG_JSON", "yes")
	t.Setenv("SYSLINK_ALERT_BUFFER_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected lowercased log level, got %q", cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("expected 3s shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if !cfg.LogJSON {
		t.Fatalf("expected json logging")
	}
	if cfg.AlertBufferSize != 64 {
		t.Fatalf("invalid int must fall back to default, got %d", cfg.AlertBufferSize)
	}
}

func TestLoadRejectsHalfTLS(t *testing.T) {
	t.Setenv("SYSLINK_TLS_CERT_PATH", "/tmp/cert.pem")

	_, err := Load()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("SYSLINK_LOG_LEVEL", "verbose")

	if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
