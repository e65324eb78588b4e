package version

import (
	"testing"

	"syslink-agent/internal/config"
)

func TestGet(t *testing.T) {
	a := Get(config.Config{Hostname: "desk", AgentVersion: "1.2.3"}, "ABCDEF0123456789", 5443)
	if a.Service != "syslink-agent" || a.ServerName != "desk" || a.Version != "1.2.3" {
		t.Fatalf("unexpected announcement: %+v", a)
	}
	if a.Port != 5443 || a.ServerID != "ABCDEF0123456789" {
		t.Fatalf("unexpected port/id: %+v", a)
	}
	if a.CheckedAtUnix <= 0 {
		t.Fatalf("checked-at must be set")
	}
}
