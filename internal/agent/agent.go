package agent

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"syslink-agent/internal/alerts"
	"syslink-agent/internal/auth"
	"syslink-agent/internal/collector"
	"syslink-agent/internal/config"
	"syslink-agent/internal/hardware"
	"syslink-agent/internal/httpapi"
	"syslink-agent/internal/notify"
	"syslink-agent/internal/observability/metrics"
	"syslink-agent/internal/storage"
	"syslink-agent/internal/stream"
)

type Agent struct {
	cfg         config.Config
	logger      *slog.Logger
	store       *config.Store
	storage     *storage.MetricsStorage
	libvirt     *hardware.ConnManager
	engine      *alerts.Engine
	registry    *auth.Registry
	broadcaster *stream.Broadcaster
	relay       *notify.GRPCRelay
	dispatcher  *notify.Dispatcher
	scheduler   *collector.Scheduler
	cleanup     *collector.CleanupService
	server      *http.Server
	health      *HealthStatus
}

func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	metrics.Init()
	ctx := context.Background()

	store := config.NewStore(cfg.ConfigPath, logger)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("load agent config: %w", err)
	}
	store.Watch()
	settings := store.Get()

	db := storage.New(settings.Storage.DatabasePath, logger)
	if err := db.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	health := NewHealthStatus()
	health.SetStorageOK(true)

	var source hardware.Source = hardware.NewHostSource(cfg.Hostname, cfg.AgentVersion, store, logger)
	var conn *hardware.ConnManager
	if cfg.LibvirtURI != "" {
		conn = hardware.NewConnManager(cfg.LibvirtURI, cfg.LibvirtReconnectInterval, cfg.LibvirtReconnectJitter, logger)
		source = hardware.NewLibvirtSource(source, conn, logger)
		health.EnableLibvirt()
	}
	cached := hardware.NewCachedSource(source, hardware.DefaultCacheMaxAge)
	processes := hardware.NewProcessMonitor(logger)

	engine := alerts.NewEngine(settings.Alerts, logger, alerts.WithBufferSize(cfg.AlertBufferSize))

	registry := auth.NewRegistry(cfg.Hostname, store, logger, auth.WithDeviceStore(db))
	if err := registry.Restore(ctx); err != nil {
		logger.Warn("restore paired devices failed", "error", err)
	}

	broadcaster := stream.NewBroadcaster(cached, processes, store, registry, logger,
		stream.WithConnectionObserver(health.SetStreamConnections))

	notifiers := notify.Multi{
		notify.NewLogNotifier(logger),
		notify.NewStoreNotifier(db),
		notify.NewStreamNotifier(broadcaster),
	}
	relay := notify.NewRelayFromConfig(cfg, registry.ServerID(), logger)
	if relay != nil {
		notifiers = append(notifiers, relay)
		health.EnableRelay()
	}
	dispatcher := notify.NewDispatcher(engine.Alerts(), notifiers, logger)

	scheduler := collector.NewScheduler(logger, cached, db, engine, store, health, cfg.CollectorErrorBackoff)
	cleanup := collector.NewCleanupService(logger, db, store, cfg.CleanupInterval, cfg.CleanupRetry)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:     logger,
		Hardware:   cached,
		Processes:  processes,
		Snapshots:  scheduler,
		History:    db,
		AlertStore: db,
		Auth:       registry,
		Config:     store,
		Alerts:     engine,
		Health:     health,
		Stream:     broadcaster,
	})

	tlsCfg, err := serverTLSConfig(cfg, settings)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tls config: %w", err)
	}
	server := &http.Server{
		Addr:              listenAddr(cfg, settings),
		Handler:           router,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &Agent{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		storage:     db,
		libvirt:     conn,
		engine:      engine,
		registry:    registry,
		broadcaster: broadcaster,
		relay:       relay,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		cleanup:     cleanup,
		server:      server,
		health:      health,
	}, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting syslink-agent",
		"server_id", a.registry.ServerID(),
		"addr", a.server.Addr,
		"tls", a.server.TLSConfig != nil,
		"libvirt_uri", a.cfg.LibvirtURI,
	)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	a.shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("syslink-agent stopped")
	return nil
}

// BuildLogger returns a text or JSON slog logger at the configured level.
func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}

func listenAddr(cfg config.Config, settings config.AgentConfig) string {
	if cfg.ListenAddr != "" {
		return cfg.ListenAddr
	}
	return net.JoinHostPort(settings.Server.BindAddress, strconv.Itoa(settings.Server.HttpsPort))
}

func discoveryAddr(cfg config.Config, settings config.AgentConfig) string {
	if cfg.DiscoveryAddr != "" {
		return cfg.DiscoveryAddr
	}
	return net.JoinHostPort(settings.Server.BindAddress, strconv.Itoa(settings.Server.DiscoveryPort))
}

// serverTLSConfig prefers the env cert/key pair. Otherwise Server.CertificatePath
// is read as a PEM bundle holding both certificate and key.
func serverTLSConfig(cfg config.Config, settings config.AgentConfig) (*tls.Config, error) {
	if cfg.TLSEnabled() {
		return cfg.ServerTLSConfig()
	}
	path := settings.Server.CertificatePath
	if path == "" {
		return nil, nil
	}
	crt, err := tls.LoadX509KeyPair(path, path)
	if err != nil {
		return nil, fmt.Errorf("load certificate bundle %s: %w", path, err)
	}
	return &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{crt}}, nil
}

func (a *Agent) apiPort() int {
	_, port, err := net.SplitHostPort(a.server.Addr)
	if err != nil {
		return a.store.Get().Server.HttpsPort
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return a.store.Get().Server.HttpsPort
	}
	return n
}
