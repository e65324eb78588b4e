package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"syslink-agent/internal/config"
	"syslink-agent/internal/model"
)

type staticSettings struct{ cfg config.AgentConfig }

func (s *staticSettings) Get() config.AgentConfig { return s.cfg }

type memoryDevices struct {
	upserts []model.PairedDevice
	stored  []model.PairedDevice
}

func (m *memoryDevices) UpsertDevice(_ context.Context, d model.PairedDevice) error {
	m.upserts = append(m.upserts, d)
	return nil
}

func (m *memoryDevices) ListDevices(context.Context) ([]model.PairedDevice, error) {
	return m.stored, nil
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *staticSettings, *testClock) {
	t.Helper()
	cfg := config.DefaultAgentConfig()
	cfg.Security.AuthToken = "admin-secret"
	settings := &staticSettings{cfg: cfg}
	clk := &testClock{t: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clk.now)}, opts...)
	r := NewRegistry("workstation", settings, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	return r, settings, clk
}

func TestPairIssuesToken(t *testing.T) {
	r, _, clk := newTestRegistry(t)
	ctx := context.Background()

	resp, err := r.Pair(ctx, model.PairRequest{DeviceName: "Phone", DeviceID: "abc"}, "10.0.0.5")
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	if !resp.Success || resp.Token == "" {
		t.Fatalf("expected token, got %+v", resp)
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Token)
	if err != nil || len(raw) != 32 {
		t.Fatalf("token must be 32 random bytes, got %d (%v)", len(raw), err)
	}
	if resp.ExpiresAt == nil || !resp.ExpiresAt.Equal(clk.t.Add(1440*time.Minute)) {
		t.Fatalf("unexpected expiry %v", resp.ExpiresAt)
	}
	if resp.ServerName != "workstation" || resp.ServerID != ServerIDFor("workstation") {
		t.Fatalf("unexpected server identity %q %q", resp.ServerName, resp.ServerID)
	}
	if !r.ValidateToken(ctx, resp.Token) {
		t.Fatalf("fresh token should validate")
	}
	devs := r.Devices()
	if len(devs) != 1 || devs[0].DeviceType != DefaultDeviceType || devs[0].IPAddress != "10.0.0.5" || !devs[0].IsActive {
		t.Fatalf("unexpected devices %+v", devs)
	}
}

func TestPairRejectsMissingFields(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	resp, err := r.Pair(context.Background(), model.PairRequest{DeviceName: "  ", DeviceID: "abc"}, "")
	if !errors.Is(err, ErrInvalidPairRequest) {
		t.Fatalf("expected ErrInvalidPairRequest, got %v", err)
	}
	if resp.Success || resp.Error != "Device name and ID are required" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestServerIDIsStable(t *testing.T) {
	id := ServerIDFor("workstation")
	if len(id) != 16 || id != ServerIDFor("workstation") {
		t.Fatalf("unexpected id %q", id)
	}
	for _, c := range id {
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			t.Fatalf("id must be uppercase hex, got %q", id)
		}
	}
}

func TestExpiredTokenIsPurged(t *testing.T) {
	r, _, clk := newTestRegistry(t)
	ctx := context.Background()
	resp, _ := r.Pair(ctx, model.PairRequest{DeviceName: "Phone", DeviceID: "abc"}, "")

	clk.t = clk.t.Add(1441 * time.Minute)
	if r.ValidateToken(ctx, resp.Token) {
		t.Fatalf("expired token must not validate")
	}
	r.mu.Lock()
	_, still := r.tokens[resp.Token]
	r.mu.Unlock()
	if still {
		t.Fatalf("expired token must be purged after a failed validation")
	}
}

func TestAdminTokenAndBypass(t *testing.T) {
	r, settings, _ := newTestRegistry(t)
	ctx := context.Background()
	if !r.ValidateToken(ctx, "admin-secret") {
		t.Fatalf("admin token should validate")
	}
	if r.ValidateToken(ctx, "nope") || r.ValidateToken(ctx, "   ") {
		t.Fatalf("unknown or blank tokens must fail")
	}
	settings.cfg.Security.RequireAuthentication = false
	if !r.ValidateToken(ctx, "anything") {
		t.Fatalf("disabled auth must accept any non-empty token")
	}
	if r.ValidateToken(ctx, "") {
		t.Fatalf("empty token fails even with auth disabled")
	}
}

func TestRevokeInvalidatesTokens(t *testing.T) {
	store := &memoryDevices{}
	r, _, _ := newTestRegistry(t, WithDeviceStore(store))
	ctx := context.Background()
	first, _ := r.Pair(ctx, model.PairRequest{DeviceName: "Phone", DeviceID: "abc"}, "")
	second, _ := r.Pair(ctx, model.PairRequest{DeviceName: "Phone", DeviceID: "abc"}, "")

	if !r.Revoke(ctx, "abc") {
		t.Fatalf("expected revoke to succeed")
	}
	if r.ValidateToken(ctx, first.Token) || r.ValidateToken(ctx, second.Token) {
		t.Fatalf("revoked tokens must not validate")
	}
	if !r.Revoke(ctx, "abc") {
		t.Fatalf("revoking a known device again stays true")
	}
	if r.Revoke(ctx, "missing") {
		t.Fatalf("revoking an unknown device must return false")
	}
	devs := r.Devices()
	if len(devs) != 1 || devs[0].IsActive {
		t.Fatalf("device should be kept inactive, got %+v", devs)
	}
	last := store.upserts[len(store.upserts)-1]
	if last.DeviceID != "abc" || last.IsActive {
		t.Fatalf("revocation was not persisted: %+v", last)
	}
}

func TestRestoreLoadsDevicesWithoutTokens(t *testing.T) {
	store := &memoryDevices{stored: []model.PairedDevice{{DeviceID: "old", DeviceName: "Tablet", IsActive: true}}}
	r, _, _ := newTestRegistry(t, WithDeviceStore(store))
	if err := r.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	devs := r.Devices()
	if len(devs) != 1 || devs[0].DeviceID != "old" {
		t.Fatalf("unexpected devices %+v", devs)
	}
}

func TestPairingCodeIsSingleUse(t *testing.T) {
	r, _, clk := newTestRegistry(t)
	code, err := r.GeneratePairingCode()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 100000 || n > 999999 {
		t.Fatalf("code must be six digits, got %q", code)
	}
	if !r.ValidatePairingCode(code) {
		t.Fatalf("first validation should succeed")
	}
	if r.ValidatePairingCode(code) {
		t.Fatalf("second validation must fail")
	}

	expired, _ := r.GeneratePairingCode()
	clk.t = clk.t.Add(PairingCodeTTL + time.Second)
	if r.ValidatePairingCode(expired) {
		t.Fatalf("expired code must fail")
	}
	r.mu.Lock()
	_, still := r.codes[expired]
	r.mu.Unlock()
	if still {
		t.Fatalf("expired code must be consumed")
	}
}
