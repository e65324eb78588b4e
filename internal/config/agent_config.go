package config

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// RedactedToken replaces the admin token whenever config is read back over the API.
const RedactedToken = "********"

// AgentConfig is the persisted, hot-reloadable agent configuration document.
type AgentConfig struct {
	Server     ServerSettings     `json:"server" mapstructure:"server"`
	Monitoring MonitoringSettings `json:"monitoring" mapstructure:"monitoring"`
	Security   SecuritySettings   `json:"security" mapstructure:"security"`
	Storage    StorageSettings    `json:"storage" mapstructure:"storage"`
	Alerts     AlertSettings      `json:"alerts" mapstructure:"alerts"`
}

type ServerSettings struct {
	HttpsPort           int    `json:"httpsPort" mapstructure:"httpsPort"`
	BindAddress         string `json:"bindAddress" mapstructure:"bindAddress"`
	EnableDiscovery     bool   `json:"enableDiscovery" mapstructure:"enableDiscovery"`
	DiscoveryPort       int    `json:"discoveryPort" mapstructure:"discoveryPort"`
	CertificatePath     string `json:"certificatePath" mapstructure:"certificatePath"`
	CertificatePassword string `json:"certificatePassword" mapstructure:"certificatePassword"`
}

type MonitoringSettings struct {
	UpdateIntervalMs        int  `json:"updateIntervalMs" mapstructure:"updateIntervalMs"`
	EnableCpuMonitoring     bool `json:"enableCpuMonitoring" mapstructure:"enableCpuMonitoring"`
	EnableGpuMonitoring     bool `json:"enableGpuMonitoring" mapstructure:"enableGpuMonitoring"`
	EnableRamMonitoring     bool `json:"enableRamMonitoring" mapstructure:"enableRamMonitoring"`
	EnableDiskMonitoring    bool `json:"enableDiskMonitoring" mapstructure:"enableDiskMonitoring"`
	EnableNetworkMonitoring bool `json:"enableNetworkMonitoring" mapstructure:"enableNetworkMonitoring"`
	EnableBatteryMonitoring bool `json:"enableBatteryMonitoring" mapstructure:"enableBatteryMonitoring"`
	EnableFanMonitoring     bool `json:"enableFanMonitoring" mapstructure:"enableFanMonitoring"`
	EnableProcessMonitoring bool `json:"enableProcessMonitoring" mapstructure:"enableProcessMonitoring"`
	ProcessUpdateIntervalMs int  `json:"processUpdateIntervalMs" mapstructure:"processUpdateIntervalMs"`
	MaxProcessesToTrack     int  `json:"maxProcessesToTrack" mapstructure:"maxProcessesToTrack"`
	// HonorSubscriptions restricts metrics broadcasts to connections subscribed to "metrics".
	HonorSubscriptions bool `json:"honorSubscriptions" mapstructure:"honorSubscriptions"`
}

type SecuritySettings struct {
	RequireAuthentication       bool     `json:"requireAuthentication" mapstructure:"requireAuthentication"`
	AuthToken                   string   `json:"authToken" mapstructure:"authToken"`
	AllowRemoteAccess           bool     `json:"allowRemoteAccess" mapstructure:"allowRemoteAccess"`
	AllowedIPAddresses          []string `json:"allowedIpAddresses" mapstructure:"allowedIpAddresses"`
	EnableMutualTLS             bool     `json:"enableMutualTls" mapstructure:"enableMutualTls"`
	TokenExpirationMinutes      int      `json:"tokenExpirationMinutes" mapstructure:"tokenExpirationMinutes"`
	RequireStreamAuthentication bool     `json:"requireStreamAuthentication" mapstructure:"requireStreamAuthentication"`
}

type StorageSettings struct {
	DatabasePath           string `json:"databasePath" mapstructure:"databasePath"`
	RetentionHours         int    `json:"retentionHours" mapstructure:"retentionHours"`
	StorageIntervalSeconds int    `json:"storageIntervalSeconds" mapstructure:"storageIntervalSeconds"`
	EnableCompression      bool   `json:"enableCompression" mapstructure:"enableCompression"`
	MaxDatabaseSizeMB      int    `json:"maxDatabaseSizeMB" mapstructure:"maxDatabaseSizeMB"`
}

type AlertSettings struct {
	EnableAlerts         bool    `json:"enableAlerts" mapstructure:"enableAlerts"`
	CpuTempThreshold     float64 `json:"cpuTempThreshold" mapstructure:"cpuTempThreshold"`
	GpuTempThreshold     float64 `json:"gpuTempThreshold" mapstructure:"gpuTempThreshold"`
	CpuUsageThreshold    float64 `json:"cpuUsageThreshold" mapstructure:"cpuUsageThreshold"`
	RamUsageThreshold    float64 `json:"ramUsageThreshold" mapstructure:"ramUsageThreshold"`
	BatteryLowThreshold  float64 `json:"batteryLowThreshold" mapstructure:"batteryLowThreshold"`
	BatteryHighThreshold float64 `json:"batteryHighThreshold" mapstructure:"batteryHighThreshold"`
	DiskUsageThreshold   float64 `json:"diskUsageThreshold" mapstructure:"diskUsageThreshold"`
	AlertCooldownSeconds int     `json:"alertCooldownSeconds" mapstructure:"alertCooldownSeconds"`
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Server: ServerSettings{
			HttpsPort:       5443,
			BindAddress:     "0.0.0.0",
			EnableDiscovery: true,
			DiscoveryPort:   5444,
		},
		Monitoring: MonitoringSettings{
			UpdateIntervalMs:        1000,
			EnableCpuMonitoring:     true,
			EnableGpuMonitoring:     true,
			EnableRamMonitoring:     true,
			EnableDiskMonitoring:    true,
			EnableNetworkMonitoring: true,
			EnableBatteryMonitoring: true,
			EnableFanMonitoring:     true,
			EnableProcessMonitoring: true,
			ProcessUpdateIntervalMs: 2000,
			MaxProcessesToTrack:     100,
		},
		Security: SecuritySettings{
			RequireAuthentication:  true,
			AllowedIPAddresses:     []string{},
			TokenExpirationMinutes: 1440,
		},
		Storage: StorageSettings{
			DatabasePath:           "syslink_data.db",
			RetentionHours:         24,
			StorageIntervalSeconds: 10,
			EnableCompression:      true,
			MaxDatabaseSizeMB:      500,
		},
		Alerts: AlertSettings{
			EnableAlerts:         true,
			CpuTempThreshold:     85,
			GpuTempThreshold:     85,
			CpuUsageThreshold:    95,
			RamUsageThreshold:    90,
			BatteryLowThreshold:  20,
			BatteryHighThreshold: 80,
			DiskUsageThreshold:   90,
			AlertCooldownSeconds: 300,
		},
	}
}

func (m MonitoringSettings) UpdateInterval() time.Duration {
	if m.UpdateIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(m.UpdateIntervalMs) * time.Millisecond
}

func (s StorageSettings) StorageInterval() time.Duration {
	if s.StorageIntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.StorageIntervalSeconds) * time.Second
}

func (s StorageSettings) Retention() time.Duration {
	return time.Duration(s.RetentionHours) * time.Hour
}

func (s StorageSettings) MaxDatabaseBytes() int64 {
	return int64(s.MaxDatabaseSizeMB) * 1024 * 1024
}

func (s SecuritySettings) TokenTTL() time.Duration {
	return time.Duration(s.TokenExpirationMinutes) * time.Minute
}

func (a AlertSettings) Cooldown() time.Duration {
	return time.Duration(a.AlertCooldownSeconds) * time.Second
}

// Redacted returns a copy safe to hand to API clients.
func Redacted(cfg AgentConfig) AgentConfig {
	out := cfg.clone()
	out.Server.CertificatePassword = ""
	out.Security.AuthToken = RedactedToken
	return out
}

func (c AgentConfig) clone() AgentConfig {
	out := c
	out.Security.AllowedIPAddresses = append([]string(nil), c.Security.AllowedIPAddresses...)
	return out
}

func generateAuthToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
