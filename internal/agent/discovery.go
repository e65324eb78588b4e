package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"syslink-agent/internal/agent/version"
)

// discoveryResponder answers every TCP connection with a single JSON line
// describing this agent and closes it.
type discoveryResponder struct {
	logger   *slog.Logger
	announce func() *version.Announcement
}

func (a *Agent) runDiscovery(ctx context.Context) error {
	addr := discoveryAddr(a.cfg, a.store.Get())
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen discovery endpoint %s: %w", addr, err)
	}
	a.logger.Info("discovery endpoint listening", "addr", addr)

	d := &discoveryResponder{
		logger: a.logger.With("component", "discovery"),
		announce: func() *version.Announcement {
			return version.Get(a.cfg, a.registry.ServerID(), a.apiPort())
		},
	}
	return d.Serve(ctx, ln)
}

func (d *discoveryResponder) Serve(ctx context.Context, ln net.Listener) error {
	defer func() { _ = ln.Close() }()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := acceptErr.(net.Error); ok && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if errors.Is(acceptErr, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept discovery endpoint: %w", acceptErr)
		}

		line, err := json.Marshal(d.announce())
		if err != nil {
			d.logger.Error("encode discovery announcement failed", "error", err)
			_ = conn.Close()
			continue
		}
		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
		_, _ = conn.Write(append(line, '\n'))
		_ = conn.Close()
		d.logger.Debug("discovery probe answered", "remote", conn.RemoteAddr().String())
	}
}
