package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Store owns the AgentConfig document on disk and fans out change notifications.
type Store struct {
	mu     sync.RWMutex
	path   string
	logger *slog.Logger
	v      *viper.Viper
	cfg    AgentConfig

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan AgentConfig
}

func NewStore(path string, logger *slog.Logger) *Store {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	return &Store{
		path:   path,
		logger: logger,
		v:      v,
		cfg:    DefaultAgentConfig(),
		subs:   make(map[int]chan AgentConfig),
	}
}

// Load reads the config file. A missing or unreadable file is replaced by defaults.
func (s *Store) Load() error {
	cfg, err := s.read()
	if err != nil {
		s.logger.Warn("failed to load configuration, using defaults", "path", s.path, "error", err)
		return s.Reset()
	}
	if cfg.Security.AuthToken == "" {
		token, tokErr := generateAuthToken()
		if tokErr != nil {
			return fmt.Errorf("generate auth token: %w", tokErr)
		}
		cfg.Security.AuthToken = token
		if err := s.save(cfg); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.logger.Info("configuration loaded", "path", s.path)
	return nil
}

// Watch reloads the document when it is edited outside the agent.
func (s *Store) Watch() {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := s.read()
		if err != nil {
			s.logger.Warn("config reload failed", "path", s.path, "error", err)
			return
		}
		s.mu.Lock()
		if reflect.DeepEqual(cfg, s.cfg) {
			s.mu.Unlock()
			return
		}
		if cfg.Security.AuthToken == "" {
			cfg.Security.AuthToken = s.cfg.Security.AuthToken
		}
		s.cfg = cfg
		s.mu.Unlock()
		s.logger.Info("configuration reloaded from disk", "path", s.path)
		s.notify(cfg)
	})
	s.v.WatchConfig()
}

func (s *Store) Get() AgentConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// Update persists cfg and notifies subscribers. An empty or redacted admin
// token keeps the current one.
func (s *Store) Update(cfg AgentConfig) error {
	if err := validateAgentConfig(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	if cfg.Security.AuthToken == "" || cfg.Security.AuthToken == RedactedToken {
		cfg.Security.AuthToken = s.cfg.Security.AuthToken
	}
	cfg = cfg.clone()
	if err := s.save(cfg); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg = cfg
	s.mu.Unlock()
	s.notify(cfg)
	return nil
}

// Reset restores defaults with a freshly generated admin token.
func (s *Store) Reset() error {
	cfg := DefaultAgentConfig()
	token, err := generateAuthToken()
	if err != nil {
		return fmt.Errorf("generate auth token: %w", err)
	}
	cfg.Security.AuthToken = token

	s.mu.Lock()
	if err := s.save(cfg); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg = cfg
	s.mu.Unlock()
	s.notify(cfg)
	return nil
}

// Subscribe returns a channel that always holds the most recent change.
func (s *Store) Subscribe() (<-chan AgentConfig, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan AgentConfig, 1)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Store) notify(cfg AgentConfig) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- cfg.clone():
		default:
			// drop the stale value so the newest one is delivered
			select {
			case <-ch:
			default:
			}
			ch <- cfg.clone()
		}
	}
}

func (s *Store) read() (AgentConfig, error) {
	if _, err := os.Stat(s.path); err != nil {
		return AgentConfig{}, err
	}
	if err := s.v.ReadInConfig(); err != nil {
		return AgentConfig{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultAgentConfig()
	if err := s.v.Unmarshal(&cfg); err != nil {
		return AgentConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := validateAgentConfig(cfg); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// save writes through a temp file so readers never observe a partial document.
func (s *Store) save(cfg AgentConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	s.logger.Info("configuration saved", "path", s.path)
	return nil
}

func validateAgentConfig(cfg AgentConfig) error {
	var errs []error
	if cfg.Server.HttpsPort <= 0 || cfg.Server.HttpsPort > 65535 {
		errs = append(errs, fmt.Errorf("server.httpsPort out of range: %d", cfg.Server.HttpsPort))
	}
	if cfg.Monitoring.UpdateIntervalMs <= 0 {
		errs = append(errs, errors.New("monitoring.updateIntervalMs must be > 0"))
	}
	if cfg.Storage.StorageIntervalSeconds <= 0 {
		errs = append(errs, errors.New("storage.storageIntervalSeconds must be > 0"))
	}
	if cfg.Storage.RetentionHours <= 0 {
		errs = append(errs, errors.New("storage.retentionHours must be > 0"))
	}
	if cfg.Security.TokenExpirationMinutes <= 0 {
		errs = append(errs, errors.New("security.tokenExpirationMinutes must be > 0"))
	}
	if cfg.Alerts.AlertCooldownSeconds < 0 {
		errs = append(errs, errors.New("alerts.alertCooldownSeconds must be >= 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
