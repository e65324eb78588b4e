package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAgentVersion = "1.0.0"
	DefaultRelayMethod  = "/syslink.alerts.v1.AlertRelay/StreamAlerts"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the process bootstrap configuration read from the environment.
// Runtime-tunable settings live in AgentConfig and are managed by Store.
type Config struct {
	Hostname                 string
	AgentVersion             string
	ConfigPath               string
	ListenAddr               string
	DiscoveryAddr            string
	TLSCertPath              string
	TLSKeyPath               string
	LogLevel                 string
	LogJSON                  bool
	ShutdownTimeout          time.Duration
	CollectorErrorBackoff    time.Duration
	CleanupInterval          time.Duration
	CleanupRetry             time.Duration
	HealthInterval           time.Duration
	LibvirtURI               string
	LibvirtReconnectInterval time.Duration
	LibvirtReconnectJitter   time.Duration
	RelayGRPCAddr            string
	RelayGRPCMethod          string
	RelayToken               string
	RelayTLS                 bool
	AlertBufferSize          int
}

// Load reads an optional .env file and then the SYSLINK_* environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	cfg := Config{
		Hostname:                 env("SYSLINK_HOSTNAME", hostname),
		AgentVersion:             env("SYSLINK_AGENT_VERSION", DefaultAgentVersion),
		ConfigPath:               env("SYSLINK_CONFIG_PATH", "config.json"),
		ListenAddr:               env("SYSLINK_LISTEN_ADDR", ""),
		DiscoveryAddr:            env("SYSLINK_DISCOVERY_ADDR", ""),
		TLSCertPath:              env("SYSLINK_TLS_CERT_PATH", ""),
		TLSKeyPath:               env("SYSLINK_TLS_KEY_PATH", ""),
		LogLevel:                 strings.ToLower(env("SYSLINK_LOG_LEVEL", "info")),
		LogJSON:                  envBool("SYSLINK_LOG_JSON", false),
		ShutdownTimeout:          envDuration("SYSLINK_SHUTDOWN_TIMEOUT", 15*time.Second),
		CollectorErrorBackoff:    envDuration("SYSLINK_COLLECTOR_ERROR_BACKOFF", time.Second),
		CleanupInterval:          envDuration("SYSLINK_CLEANUP_INTERVAL", time.Hour),
		CleanupRetry:             envDuration("SYSLINK_CLEANUP_RETRY", 5*time.Minute),
		HealthInterval:           envDuration("SYSLINK_HEALTH_INTERVAL", 10*time.Second),
		LibvirtURI:               env("SYSLINK_LIBVIRT_URI", ""),
		LibvirtReconnectInterval: envDuration("SYSLINK_LIBVIRT_RECONNECT_INTERVAL", 4*time.Second),
		LibvirtReconnectJitter:   envDuration("SYSLINK_LIBVIRT_RECONNECT_JITTER", 900*time.Millisecond),
		RelayGRPCAddr:            env("SYSLINK_RELAY_GRPC_ADDR", ""),
		RelayGRPCMethod:          env("SYSLINK_RELAY_GRPC_METHOD", DefaultRelayMethod),
		RelayToken:               env("SYSLINK_RELAY_TOKEN", ""),
		RelayTLS:                 envBool("SYSLINK_RELAY_TLS", false),
		AlertBufferSize:          envInt("SYSLINK_ALERT_BUFFER_SIZE", 64),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Hostname) == "" {
		return fmt.Errorf("%w: SYSLINK_HOSTNAME must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ConfigPath) == "" {
		return fmt.Errorf("%w: SYSLINK_CONFIG_PATH is required", ErrInvalidConfig)
	}
	if (c.TLSCertPath == "") != (c.TLSKeyPath == "") {
		return fmt.Errorf("%w: both SYSLINK_TLS_CERT_PATH and SYSLINK_TLS_KEY_PATH are required", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: SYSLINK_SHUTDOWN_TIMEOUT must be > 0", ErrInvalidConfig)
	}
	if c.CleanupInterval <= 0 || c.CleanupRetry <= 0 {
		return fmt.Errorf("%w: cleanup intervals must be > 0", ErrInvalidConfig)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("%w: SYSLINK_HEALTH_INTERVAL must be > 0", ErrInvalidConfig)
	}
	if c.AlertBufferSize < 0 {
		return fmt.Errorf("%w: SYSLINK_ALERT_BUFFER_SIZE must be >= 0", ErrInvalidConfig)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unsupported log level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.RelayGRPCAddr != "" && strings.TrimSpace(c.RelayGRPCMethod) == "" {
		return fmt.Errorf("%w: SYSLINK_RELAY_GRPC_METHOD is required when the relay is enabled", ErrInvalidConfig)
	}
	return nil
}

// TLSEnabled reports whether the API should be served over HTTPS.
func (c Config) TLSEnabled() bool {
	return c.TLSCertPath != "" && c.TLSKeyPath != ""
}

// ServerTLSConfig loads the API certificate, or returns nil when TLS is off.
func (c Config) ServerTLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled() {
		return nil, nil
	}
	crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load tls cert/key: %w", err)
	}
	return &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{crt}}, nil
}

// RelayTLSConfig is the client TLS config used for the upstream relay.
func (c Config) RelayTLSConfig() *tls.Config {
	if !c.RelayTLS {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
