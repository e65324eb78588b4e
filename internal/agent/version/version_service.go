package version

import (
	"time"

	"syslink-agent/internal/config"
)

func Get(cfg config.Config, serverID string, apiPort int) *Announcement {
	return &Announcement{
		Service:       ServiceName,
		ServerName:    cfg.Hostname,
		ServerID:      serverID,
		Port:          apiPort,
		Version:       cfg.AgentVersion,
		CheckedAtUnix: time.Now().UTC().Unix(),
	}
}
