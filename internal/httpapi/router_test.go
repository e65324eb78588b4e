package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"syslink-agent/internal/auth"
	"syslink-agent/internal/config"
	"syslink-agent/internal/hardware"
	"syslink-agent/internal/model"
)

const adminToken = "admin-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memConfig struct {
	mu  sync.Mutex
	cfg config.AgentConfig
}

func (m *memConfig) Get() config.AgentConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *memConfig) Update(cfg config.AgentConfig) error {
	if cfg.Monitoring.UpdateIntervalMs <= 0 {
		return fmt.Errorf("%w: interval", config.ErrInvalidConfig)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	return nil
}

func (m *memConfig) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := m.cfg.Security.AuthToken
	m.cfg = config.DefaultAgentConfig()
	m.cfg.Security.AuthToken = token
	return nil
}

type fakeHardware struct{ err error }

func (f fakeHardware) GetMetrics(context.Context) (model.SystemMetrics, error) {
	if f.err != nil {
		return model.SystemMetrics{}, f.err
	}
	return model.SystemMetrics{Cpu: model.CPUMetrics{AverageUsage: 12.5}}, nil
}

func (f fakeHardware) GetMinimal(context.Context) (model.MinimalMetrics, error) {
	return model.MinimalMetrics{CpuUsage: 12.5}, f.err
}

func (f fakeHardware) GetSystemInfo(context.Context) (model.SystemInfo, error) {
	return model.SystemInfo{DeviceName: "gaming-rig"}, f.err
}

type fakeSnapshots struct{}

func (fakeSnapshots) Last() (model.SystemMetrics, bool) {
	return model.SystemMetrics{Cpu: model.CPUMetrics{AverageUsage: 99}}, true
}

type fakeProcesses struct {
	lastOpts  model.ProcessQueryOptions
	lastCount int
}

func (f *fakeProcesses) List(_ context.Context, opts model.ProcessQueryOptions) (model.ProcessListResponse, error) {
	f.lastOpts = opts
	return model.ProcessListResponse{TotalProcessCount: 1, Processes: []model.ProcessInfo{{Pid: 10, Name: "x"}}}, nil
}

func (f *fakeProcesses) Get(_ context.Context, pid int32) (model.ProcessInfo, error) {
	if pid == 10 {
		return model.ProcessInfo{Pid: 10, Name: "x"}, nil
	}
	return model.ProcessInfo{}, fmt.Errorf("%w: %d", hardware.ErrProcessNotFound, pid)
}

func (f *fakeProcesses) TopByCPU(_ context.Context, n int) ([]model.ProcessInfo, error) {
	f.lastCount = n
	return []model.ProcessInfo{}, nil
}

func (f *fakeProcesses) TopByMemory(_ context.Context, n int) ([]model.ProcessInfo, error) {
	f.lastCount = n
	return []model.ProcessInfo{}, nil
}

type fakeHistory struct {
	last model.HistoryQueryOptions
	err  error
}

func (f *fakeHistory) GetHistory(_ context.Context, opts model.HistoryQueryOptions) (model.HistoryResponse, error) {
	f.last = opts
	return model.HistoryResponse{MetricType: opts.MetricType, DataPoints: []model.HistoryDataPoint{}}, f.err
}

type fakeAlerts struct{ acked []string }

func (f *fakeAlerts) Active() []model.Alert { return nil }

func (f *fakeAlerts) History(count int) []model.Alert {
	return []model.Alert{{ID: "a1"}, {ID: "a2"}}[:min(count, 2)]
}

func (f *fakeAlerts) Acknowledge(id string) bool {
	if id != "a1" {
		return false
	}
	f.acked = append(f.acked, id)
	return true
}

type fakeHealth struct{}

func (fakeHealth) Snapshot() map[string]any { return map[string]any{"storage_ok": true} }

type testEnv struct {
	handler   http.Handler
	cfg       *memConfig
	registry  *auth.Registry
	processes *fakeProcesses
	history   *fakeHistory
	alerts    *fakeAlerts
}

func newTestEnv(t *testing.T, hw HardwareSource) *testEnv {
	t.Helper()
	cfg := config.DefaultAgentConfig()
	cfg.Security.AuthToken = adminToken
	store := &memConfig{cfg: cfg}
	registry := auth.NewRegistry("gaming-rig", store, discardLogger())
	env := &testEnv{
		cfg:       store,
		registry:  registry,
		processes: &fakeProcesses{},
		history:   &fakeHistory{},
		alerts:    &fakeAlerts{},
	}
	env.handler = NewRouter(Deps{
		Logger:    discardLogger(),
		Hardware:  hw,
		Processes: env.processes,
		Snapshots: fakeSnapshots{},
		History:   env.history,
		Auth:      registry,
		Config:    store,
		Alerts:    env.alerts,
		Health:    fakeHealth{},
		Now:       func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, fakeHardware{})

	rec := env.do(t, http.MethodGet, "/api/status", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "Unauthorized" {
		t.Fatalf("unexpected body %v", body)
	}
	if rec := env.do(t, http.MethodGet, "/api/status", "wrong", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/status", adminToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin token, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("/metrics must require a token, got %d", rec.Code)
	}

	for _, path := range []string{"/health", "/api/auth/pairing-code"} {
		if rec := env.do(t, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Fatalf("%s should be public, got %d", path, rec.Code)
		}
	}

	cfg := env.cfg.Get()
	cfg.Security.RequireAuthentication = false
	_ = env.cfg.Update(cfg)
	if rec := env.do(t, http.MethodGet, "/api/status", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("auth disabled should allow requests, got %d", rec.Code)
	}
}

func TestPairAndUseDeviceToken(t *testing.T) {
	env := newTestEnv(t, fakeHardware{})

	rec := env.do(t, http.MethodPost, "/api/auth/pair", "", `{"deviceName":"","deviceId":"p1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing name, got %d", rec.Code)
	}
	if resp := decode[model.PairResponse](t, rec); resp.Success || resp.Error == "" {
		t.Fatalf("unexpected failure body %+v", resp)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/pair", "", `{"deviceName":"Pixel","deviceId":"p1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("pair: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[model.PairResponse](t, rec)
	if !resp.Success || resp.Token == "" || resp.ServerName != "gaming-rig" {
		t.Fatalf("unexpected pair response %+v", resp)
	}

	if rec := env.do(t, http.MethodGet, "/api/auth/validate", resp.Token, ""); rec.Code != http.StatusOK {
		t.Fatalf("validate: %d", rec.Code)
	}
	devices := decode[[]model.PairedDevice](t, env.do(t, http.MethodGet, "/api/auth/devices", resp.Token, ""))
	if len(devices) != 1 || devices[0].DeviceType != auth.DefaultDeviceType {
		t.Fatalf("unexpected devices %+v", devices)
	}

	if rec := env.do(t, http.MethodDelete, "/api/auth/devices/unknown", adminToken, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown device, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodDelete, "/api/auth/devices/p1", adminToken, "")
	if rec.Code != http.StatusOK || decode[map[string]string](t, rec)["message"] != "Device access revoked" {
		t.Fatalf("revoke: %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/api/status", resp.Token, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token must be rejected, got %d", rec.Code)
	}
}

func TestValidateWithAuthenticationDisabled(t *testing.T) {
	env := newTestEnv(t, fakeHardware{})
	cfg := env.cfg.Get()
	cfg.Security.RequireAuthentication = false
	_ = env.cfg.Update(cfg)

	rec := env.do(t, http.MethodGet, "/api/auth/validate", "", "")
	if rec.Code != http.StatusUnauthorized || decode[map[string]string](t, rec)["error"] != "No token provided" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	// any token is accepted while authentication is off
	rec = env.do(t, http.MethodGet, "/api/auth/validate", "anything", "")
	if rec.Code != http.StatusOK || !decode[map[string]bool](t, rec)["valid"] {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestPairingCodeResponse(t *testing.T) {
	env := newTestEnv(t, fakeHardware{})
	body := decode[model.PairingCodeResponse](t, env.do(t, http.MethodGet, "/api/auth/pairing-code", "", ""))
	if len(body.Code) != 6 || body.ExpiresIn != 300 || body.ServerName != "gaming-rig" {
		t.Fatalf("unexpected pairing code response %+v", body)
	}
	if !env.registry.ValidatePairingCode(body.Code) {
		t.Fatalf("issued code should validate")
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t, fakeHardware{})

	rec := env.do(t, http.MethodGet, "/api/history/bogus", adminToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["error"] != "Invalid metric type: bogus" {
		t.Fatalf("unexpected error %v", body["error"])
	}
	if types, ok := body["validTypes"].([]any); !ok || len(types) != len(model.MetricTypes) {
		t.Fatalf("expected validTypes catalog, got %v", body["validTypes"])
	}

	rec = env.do(t, http.MethodGet, "/api/history/CPU_USAGE?period=30m&maxPoints=100&aggregation=MAX", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	got := env.history.last
	if got.MetricType != model.MetricCpuUsage || got.Period != 30*time.Minute || got.MaxPoints != 100 || got.Aggregation != model.AggregationMax {
		t.Fatalf("unexpected query options %+v", got)
	}

	env.do(t, http.MethodGet, "/api/history/ram_usage", adminToken, "")
	if env.history.last.Period != time.Hour || env.history.last.MaxPoints != 360 || env.history.last.Aggregation != model.AggregationAverage {
		t.Fatalf("unexpected defaults %+v", env.history.last)
	}

	env.do(t, http.MethodGet, "/api/history/cpu_usage?maxPoints=0", adminToken, "")
	if env.history.last.MaxPoints != model.DefaultHistoryMaxPoints {
		t.Fatalf("maxPoints=0 should fall back to %d, got %d", model.DefaultHistoryMaxPoints, env.history.last.MaxPoints)
	}

	catalog := decode[[]string](t, env.do(t, http.MethodGet, "/api/history", adminToken, ""))
	if len(catalog) != len(model.MetricTypes) {
		t.Fatalf("unexpected catalog %v", catalog)
	}

	env.history.err = errors.New("database is locked")
	rec = env.do(t, http.MethodGet, "/api/history/cpu_usage", adminToken, "")
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "locked") {
		t.Fatalf("internal errors must not leak: %d %s", rec.Code, rec.Body.String())
	}
}

func TestParsePeriod(t *testing.T) {
	cases := map[string]time.Duration{
		"30m": 30 * time.Minute,
		"6h":  6 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"xh":  time.Hour,
		"5w":  time.Hour,
		"":    time.Hour,
		"2H":  2 * time.Hour,
	}
	for in, want := range cases {
		if got := ParsePeriod(in); got != want {
			t.Fatalf("ParsePeriod(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestProcessEndpoints(t *testing.T) {
	env := newTestEnv(t, fakeHardware{})

	rec := env.do(t, http.MethodGet, "/api/processes?sortBy=memoryusage&sortDesc=false&top=5&search=chr&includeSystem=true", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("processes: %d", rec.Code)
	}
	opts := env.processes.lastOpts
	if opts.SortBy != model.SortByMemoryUsage || opts.SortDescending || opts.Top != 5 || opts.SearchTerm != "chr" || !opts.IncludeSystemProcesses {
		t.Fatalf("unexpected options %+v", opts)
	}

	env.do(t, http.MethodGet, "/api/processes", adminToken, "")
	if opts := env.processes.lastOpts; opts.SortBy != model.SortByCpuUsage || !opts.SortDescending || opts.Top != 50 {
		t.Fatalf("unexpected default options %+v", opts)
	}

	if rec := env.do(t, http.MethodGet, "/api/processes/10", adminToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("get process: %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/processes/999", adminToken, "")
	if rec.Code != http.StatusNotFound || decode[map[string]string](t, rec)["error"] != "Process 999 not found" {
		t.Fatalf("unexpected not found response %d %s", rec.Code, rec.Body.String())
	}

	env.do(t, http.MethodGet, "/api/processes/top/cpu", adminToken, "")
	if env.processes.lastCount != 10 {
		t.Fatalf("expected default count 10, got %d", env.processes.lastCount)
	}
	env.do(t, http.MethodGet, "/api/processes/top/memory?count=3", adminToken, "")
	if env.processes.lastCount != 3 {
		t.Fatalf("expected count 3, got %d", env.processes.lastCount)
	}
}

func TestStatusFallsBackToLastSnapshot(t *testing.T) {
	env := newTestEnv(t, fakeHardware{err: errors.New("sensor timeout")})
	rec := env.do(t, http.MethodGet, "/api/status", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected cached snapshot, got %d", rec.Code)
	}
	if m := decode[model.SystemMetrics](t, rec); m.Cpu.AverageUsage != 99 {
		t.Fatalf("unexpected snapshot %+v", m.Cpu)
	}
	if rec := env.do(t, http.MethodGet, "/api/info", adminToken, ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestConfigEndpoints(t *testing.T) {
	env := newTestEnv(t, fakeHardware{})

	got := decode[config.AgentConfig](t, env.do(t, http.MethodGet, "/api/config", adminToken, ""))
	if got.Security.AuthToken != config.RedactedToken {
		t.Fatalf("token must be redacted, got %q", got.Security.AuthToken)
	}

	rec := env.do(t, http.MethodPost, "/api/config", adminToken, `{"monitoring":{"updateIntervalMs":250}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	cfg := env.cfg.Get()
	if cfg.Monitoring.UpdateIntervalMs != 250 || cfg.Storage.RetentionHours != 24 {
		t.Fatalf("partial update should keep other fields: %+v", cfg)
	}

	rec = env.do(t, http.MethodPost, "/api/config", adminToken, `{"monitoring":{"updateIntervalMs":0}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid config, got %d", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, "/api/config/reset", adminToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("reset: %d", rec.Code)
	}
	if env.cfg.Get().Monitoring.UpdateIntervalMs != 1000 {
		t.Fatalf("reset should restore defaults")
	}
}

func TestAlertEndpoints(t *testing.T) {
	env := newTestEnv(t, fakeHardware{})

	history := decode[[]model.Alert](t, env.do(t, http.MethodGet, "/api/alerts?count=1", adminToken, ""))
	if len(history) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(history))
	}
	if body := env.do(t, http.MethodGet, "/api/alerts/active", adminToken, "").Body.String(); strings.TrimSpace(body) != "[]" {
		t.Fatalf("empty active list should encode as [], got %s", body)
	}
	if rec := env.do(t, http.MethodPost, "/api/alerts/zzz/acknowledge", adminToken, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/alerts/a1/acknowledge", adminToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("acknowledge: %d", rec.Code)
	}
}

func TestHealthAndIPFilter(t *testing.T) {
	env := newTestEnv(t, fakeHardware{})

	body := decode[map[string]any](t, env.do(t, http.MethodGet, "/health", "", ""))
	if body["status"] != "healthy" || body["checks"] == nil {
		t.Fatalf("unexpected health body %v", body)
	}

	cfg := env.cfg.Get()
	cfg.Security.AllowedIPAddresses = []string{"10.0.0.0/8"}
	_ = env.cfg.Update(cfg)
	// httptest requests originate from 192.0.2.1
	if rec := env.do(t, http.MethodGet, "/health", "", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 from disallowed address, got %d", rec.Code)
	}
	cfg.Security.AllowedIPAddresses = []string{"192.0.2.1"}
	_ = env.cfg.Update(cfg)
	if rec := env.do(t, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected allowed address to pass, got %d", rec.Code)
	}

	// forwarding headers are not trusted
	cfg.Security.AllowedIPAddresses = []string{"10.0.0.1"}
	_ = env.cfg.Update(cfg)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.Header.Set("X-Real-IP", "10.0.0.1")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("spoofed forwarding headers: expected 403, got %d", rec.Code)
	}
}
