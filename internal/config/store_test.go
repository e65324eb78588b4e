package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	return NewStore(path, slog.New(slog.NewTextHandler(io.Discard, nil))), path
}

func TestStoreLoadMissingFileWritesDefaults(t *testing.T) {
	s, path := newTestStore(t)

	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := s.Get()
	if cfg.Server.HttpsPort != 5443 || cfg.Storage.RetentionHours != 24 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Security.AuthToken == "" {
		t.Fatalf("expected generated admin token")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	var onDisk AgentConfig
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("decode saved config: %v", err)
	}
	if onDisk.Security.AuthToken != cfg.Security.AuthToken {
		t.Fatalf("saved token does not match in-memory token")
	}
}

func TestStoreLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	s, path := newTestStore(t)
	doc := `{"monitoring":{"updateIntervalMs":250},"alerts":{"cpuTempThreshold":70},"security":{"authToken":"static"}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := s.Get()
	if cfg.Monitoring.UpdateIntervalMs != 250 {
		t.Fatalf("expected 250ms interval, got %d", cfg.Monitoring.UpdateIntervalMs)
	}
	if cfg.Alerts.CpuTempThreshold != 70 {
		t.Fatalf("expected threshold 70, got %v", cfg.Alerts.CpuTempThreshold)
	}
	if cfg.Alerts.GpuTempThreshold != 85 {
		t.Fatalf("expected default gpu threshold, got %v", cfg.Alerts.GpuTempThreshold)
	}
	if cfg.Security.AuthToken != "static" {
		t.Fatalf("expected token from file, got %q", cfg.Security.AuthToken)
	}
}

func TestStoreUpdateKeepsTokenWhenRedacted(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	original := s.Get().Security.AuthToken

	next := Redacted(s.Get())
	next.Storage.RetentionHours = 48
	if err := s.Update(next); err != nil {
		t.Fatalf("update: %v", err)
	}

	cfg := s.Get()
	if cfg.Security.AuthToken != original {
		t.Fatalf("redacted token must not overwrite the real one")
	}
	if cfg.Storage.RetentionHours != 48 {
		t.Fatalf("expected retention 48, got %d", cfg.Storage.RetentionHours)
	}
}

func TestStoreUpdateRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	bad := s.Get()
	bad.Monitoring.UpdateIntervalMs = 0
	if err := s.Update(bad); err == nil {
		t.Fatalf("expected validation error")
	}
	if s.Get().Monitoring.UpdateIntervalMs != 1000 {
		t.Fatalf("rejected update must not be applied")
	}
}

func TestStoreSubscribeDeliversNewest(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch, cancel := s.Subscribe()
	defer cancel()

	for _, hours := range []int{2, 3, 4} {
		cfg := s.Get()
		cfg.Storage.RetentionHours = hours
		if err := s.Update(cfg); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	select {
	case got := <-ch:
		if got.Storage.RetentionHours != 4 {
			t.Fatalf("expected newest retention 4, got %d", got.Storage.RetentionHours)
		}
	case <-time.After(time.Second):
		t.Fatalf("no notification received")
	}
}

func TestStoreResetGeneratesNewToken(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := s.Get().Security.AuthToken

	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	after := s.Get().Security.AuthToken
	if after == "" || after == before {
		t.Fatalf("expected a fresh token after reset")
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	cfg := DefaultAgentConfig()
	cfg.Security.AuthToken = "secret"
	cfg.Server.CertificatePassword = "pw"

	out := Redacted(cfg)
	if out.Security.AuthToken != RedactedToken {
		t.Fatalf("expected redacted token, got %q", out.Security.AuthToken)
	}
	if out.Server.CertificatePassword != "" {
		t.Fatalf("certificate password must be cleared")
	}
	if cfg.Security.AuthToken != "secret" {
		t.Fatalf("redaction must not mutate the input")
	}
}
