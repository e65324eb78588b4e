package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"syslink-agent/internal/config"
	"syslink-agent/internal/model"
	"syslink-agent/internal/observability/metrics"
)

const (
	PairingCodeTTL    = 5 * time.Minute
	DefaultDeviceType = "Android"

	tokenBytes         = 32
	codeMin            = 100000
	codeSpan           = 900000
	lastSeenPersistGap = time.Minute
)

const invalidPairMessage = "Device name and ID are required"

var ErrInvalidPairRequest = errors.New("device name and id are required")

// SettingsSource supplies the live security settings.
type SettingsSource interface {
	Get() config.AgentConfig
}

// DeviceStore persists paired device records. Tokens are never persisted.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, d model.PairedDevice) error
	ListDevices(ctx context.Context) ([]model.PairedDevice, error)
}

type Registry struct {
	logger     *slog.Logger
	settings   SettingsSource
	store      DeviceStore
	now        func() time.Time
	serverName string
	serverID   string

	mu        sync.Mutex
	tokens    map[string]model.AuthToken
	devices   map[string]model.PairedDevice
	codes     map[string]time.Time
	persisted map[string]time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func WithDeviceStore(store DeviceStore) Option {
	return func(r *Registry) { r.store = store }
}

func NewRegistry(serverName string, settings SettingsSource, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:     logger.With("component", "auth"),
		settings:   settings,
		now:        time.Now,
		serverName: serverName,
		serverID:   ServerIDFor(serverName),
		tokens:     make(map[string]model.AuthToken),
		devices:    make(map[string]model.PairedDevice),
		codes:      make(map[string]time.Time),
		persisted:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ServerIDFor is the first 16 hex characters of SHA-256(hostname), uppercase.
func ServerIDFor(hostname string) string {
	sum := sha256.Sum256([]byte(hostname))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:16]
}

func (r *Registry) ServerID() string   { return r.serverID }
func (r *Registry) ServerName() string { return r.serverName }

// Restore loads persisted device records. Restored devices have no tokens
// until they pair again.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	devices, err := r.store.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("restore devices: %w", err)
	}
	r.mu.Lock()
	for _, d := range devices {
		r.devices[d.DeviceID] = d
		r.persisted[d.DeviceID] = d.LastConnected
	}
	r.mu.Unlock()
	r.logger.Info("paired devices restored", "count", len(devices))
	return nil
}

// Pair issues a fresh token for the device. Re-pairing the same device ID
// refreshes its record and adds a new token.
func (r *Registry) Pair(ctx context.Context, req model.PairRequest, remoteIP string) (model.PairResponse, error) {
	if strings.TrimSpace(req.DeviceName) == "" || strings.TrimSpace(req.DeviceID) == "" {
		metrics.ObserveAuth("pair", false)
		return model.PairResponse{Success: false, Error: invalidPairMessage}, ErrInvalidPairRequest
	}
	token, err := newToken()
	if err != nil {
		return model.PairResponse{Success: false, Error: "Failed to generate token"}, fmt.Errorf("generate token: %w", err)
	}
	deviceType := req.DeviceType
	if strings.TrimSpace(deviceType) == "" {
		deviceType = DefaultDeviceType
	}

	now := r.now().UTC()
	ttl := r.settings.Get().Security.TokenTTL()
	at := model.AuthToken{
		Token:      token,
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	dev := model.PairedDevice{
		DeviceID:      req.DeviceID,
		DeviceName:    req.DeviceName,
		DeviceType:    deviceType,
		PairedAt:      now,
		LastConnected: now,
		IPAddress:     remoteIP,
		IsActive:      true,
	}

	r.mu.Lock()
	r.tokens[token] = at
	r.devices[req.DeviceID] = dev
	r.persisted[req.DeviceID] = now
	r.mu.Unlock()

	r.persist(ctx, dev)
	metrics.ObserveAuth("pair", true)
	r.logger.Info("device paired", "device_name", req.DeviceName, "device_id", req.DeviceID)

	expires := at.ExpiresAt
	return model.PairResponse{
		Success:    true,
		Token:      token,
		ExpiresAt:  &expires,
		ServerName: r.serverName,
		ServerID:   r.serverID,
	}, nil
}

// ValidateToken accepts the admin token or a live device token. An expired
// device token is purged on the attempt that finds it expired.
func (r *Registry) ValidateToken(ctx context.Context, token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	sec := r.settings.Get().Security
	if !sec.RequireAuthentication {
		return true
	}
	if sec.AuthToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(sec.AuthToken)) == 1 {
		metrics.ObserveAuth("validate", true)
		return true
	}

	now := r.now().UTC()
	var toPersist *model.PairedDevice

	r.mu.Lock()
	at, ok := r.tokens[token]
	if ok && !at.Valid(now) {
		delete(r.tokens, token)
		ok = false
	}
	if ok {
		if dev, found := r.devices[at.DeviceID]; found {
			dev.LastConnected = now
			r.devices[at.DeviceID] = dev
			if now.Sub(r.persisted[at.DeviceID]) >= lastSeenPersistGap {
				r.persisted[at.DeviceID] = now
				toPersist = &dev
			}
		}
	}
	r.mu.Unlock()

	if toPersist != nil {
		r.persist(ctx, *toPersist)
	}
	metrics.ObserveAuth("validate", ok)
	return ok
}

// Revoke drops every token of the device and marks it inactive. It reports
// whether the device or any of its tokens existed.
func (r *Registry) Revoke(ctx context.Context, deviceID string) bool {
	r.mu.Lock()
	removed := 0
	for tok, at := range r.tokens {
		if at.DeviceID == deviceID {
			delete(r.tokens, tok)
			removed++
		}
	}
	dev, found := r.devices[deviceID]
	if found {
		dev.IsActive = false
		r.devices[deviceID] = dev
	}
	r.mu.Unlock()

	if found {
		r.persist(ctx, dev)
		r.logger.Info("device revoked", "device_name", dev.DeviceName, "device_id", deviceID)
		return true
	}
	return removed > 0
}

// Devices lists every known device, including revoked ones, by pairing time.
func (r *Registry) Devices() []model.PairedDevice {
	r.mu.Lock()
	out := make([]model.PairedDevice, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].PairedAt.Equal(out[j].PairedAt) {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].PairedAt.Before(out[j].PairedAt)
	})
	return out
}

// GeneratePairingCode returns a fresh six digit code valid for five minutes.
func (r *Registry) GeneratePairingCode() (string, error) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for c, exp := range r.codes {
		if exp.Before(now) {
			delete(r.codes, c)
		}
	}
	for {
		n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
		if err != nil {
			return "", fmt.Errorf("generate pairing code: %w", err)
		}
		code := strconv.FormatInt(n.Int64()+codeMin, 10)
		if _, taken := r.codes[code]; taken {
			continue
		}
		r.codes[code] = now.Add(PairingCodeTTL)
		return code, nil
	}
}

// ValidatePairingCode consumes the code whether or not it is still valid.
func (r *Registry) ValidatePairingCode(code string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.codes[code]
	if !ok {
		return false
	}
	delete(r.codes, code)
	return exp.After(now)
}

func (r *Registry) persist(ctx context.Context, d model.PairedDevice) {
	if r.store == nil {
		return
	}
	if err := r.store.UpsertDevice(ctx, d); err != nil {
		r.logger.Error("persist device failed", "device_id", d.DeviceID, "error", err)
	}
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
