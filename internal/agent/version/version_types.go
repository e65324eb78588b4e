package version

const ServiceName = "syslink-agent"

// Announcement is the one-line reply sent to discovery probes.
type Announcement struct {
	Service       string `json:"service"`
	ServerName    string `json:"serverName"`
	ServerID      string `json:"serverId"`
	Port          int    `json:"port"`
	Version       string `json:"version"`
	CheckedAtUnix int64  `json:"checkedAtUnix"`
}
