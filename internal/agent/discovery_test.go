package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"syslink-agent/internal/agent/version"
)

func TestDiscoveryAnswersOneLine(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &discoveryResponder{
		logger: discardLogger(),
		announce: func() *version.Announcement {
			return &version.Announcement{Service: version.ServiceName, ServerName: "desk", ServerID: "ABC", Port: 5443, Version: "1.0.0"}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, ln) }()

	for i := 0; i < 2; i++ {
		conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		line, err := bufio.NewReader(conn).ReadString('\n')
		_ = conn.Close()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var got version.Announcement
		if err := json.Unmarshal([]byte(line), &got); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		if got.Service != "syslink-agent" || got.ServerName != "desk" || got.Port != 5443 {
			t.Fatalf("unexpected announcement: %+v", got)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("discovery responder did not stop")
	}
}
