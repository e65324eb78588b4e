package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"syslink-agent/internal/hardware"
)

func (a *Agent) run(ctx context.Context) error {
	if a.libvirt != nil {
		if err := hardware.ConnectWithTimeout(ctx, a.libvirt); err != nil {
			a.logger.Warn("initial libvirt connect failed, continuing with host metrics", "error", err)
		} else {
			a.health.SetLibvirtConnected(true)
		}
	}

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen api endpoint %s: %w", a.server.Addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.serveHTTP(gctx, ln)
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.cleanup.Run(gctx)
	})
	g.Go(func() error {
		return a.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return a.runConfigWatch(gctx)
	})
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	if a.libvirt != nil {
		g.Go(func() error {
			return a.libvirt.Supervise(gctx, a.cfg.LibvirtReconnectInterval, a.health.SetLibvirtConnected)
		})
	}
	if a.store.Get().Server.EnableDiscovery {
		g.Go(func() error {
			return a.runDiscovery(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *Agent) serveHTTP(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		// hijacked websocket connections are not tracked by Shutdown
		a.broadcaster.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http shutdown failed", "error", err)
		}
	}()

	a.logger.Info("api endpoint listening", "addr", ln.Addr().String(), "tls", a.server.TLSConfig != nil)
	var err error
	if a.server.TLSConfig != nil {
		err = a.server.ServeTLS(ln, "", "")
	} else {
		err = a.server.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}

// runConfigWatch applies alert thresholds from every config change.
func (a *Agent) runConfigWatch(ctx context.Context) error {
	changes, unsubscribe := a.store.Subscribe()
	defer unsubscribe()
	return a.engine.WatchConfig(ctx, changes)
}

func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			a.checkHealth(ctx)
		}
	}
}

func (a *Agent) checkHealth(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.storage.Healthy(checkCtx); err != nil {
		if a.health.storageOK.Load() {
			a.logger.Error("storage health check failed", "error", err)
		}
		a.health.SetStorageOK(false)
	} else {
		a.health.SetStorageOK(true)
	}
	if a.relay != nil {
		a.health.SetRelayConnected(a.relay.Connected())
	}
	a.logger.Debug("agent health", "snapshot", a.health.Snapshot())
}

func (a *Agent) shutdown() {
	a.broadcaster.Close()
	if err := a.server.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Warn("http server close failed", "error", err)
	}
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.logger.Warn("relay close failed", "error", err)
		}
		a.health.SetRelayConnected(false)
	}
	if a.libvirt != nil {
		if err := a.libvirt.Close(); err != nil {
			a.logger.Warn("libvirt close failed", "error", err)
		}
		a.health.SetLibvirtConnected(false)
	}
	if err := a.storage.Close(); err != nil {
		a.logger.Warn("storage close failed", "error", err)
	}
	a.health.SetStorageOK(false)
}
