package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"syslink-agent/internal/config"
	"syslink-agent/internal/model"
	"syslink-agent/internal/observability/metrics"
)

type HardwareSource interface {
	GetMetrics(ctx context.Context) (model.SystemMetrics, error)
	GetMinimal(ctx context.Context) (model.MinimalMetrics, error)
	GetSystemInfo(ctx context.Context) (model.SystemInfo, error)
}

type ProcessSource interface {
	List(ctx context.Context, opts model.ProcessQueryOptions) (model.ProcessListResponse, error)
	Get(ctx context.Context, pid int32) (model.ProcessInfo, error)
	TopByCPU(ctx context.Context, n int) ([]model.ProcessInfo, error)
	TopByMemory(ctx context.Context, n int) ([]model.ProcessInfo, error)
}

// SnapshotCache serves the last collected snapshot when a live read fails.
type SnapshotCache interface {
	Last() (model.SystemMetrics, bool)
}

type HistoryStore interface {
	GetHistory(ctx context.Context, opts model.HistoryQueryOptions) (model.HistoryResponse, error)
}

type AlertAcknowledger interface {
	AcknowledgeAlert(ctx context.Context, id string) error
}

type Authenticator interface {
	Pair(ctx context.Context, req model.PairRequest, remoteIP string) (model.PairResponse, error)
	ValidateToken(ctx context.Context, token string) bool
	Revoke(ctx context.Context, deviceID string) bool
	Devices() []model.PairedDevice
	GeneratePairingCode() (string, error)
	ServerName() string
}

type ConfigStore interface {
	Get() config.AgentConfig
	Update(cfg config.AgentConfig) error
	Reset() error
}

type AlertService interface {
	Active() []model.Alert
	History(count int) []model.Alert
	Acknowledge(id string) bool
}

type HealthReporter interface {
	Snapshot() map[string]any
}

// Deps are the collaborators served by the router. Optional fields may be nil.
type Deps struct {
	Logger     *slog.Logger
	Hardware   HardwareSource
	Processes  ProcessSource
	Snapshots  SnapshotCache
	History    HistoryStore
	AlertStore AlertAcknowledger
	Auth       Authenticator
	Config     ConfigStore
	Alerts     AlertService
	Health     HealthReporter
	Stream     http.Handler
	Now        func() time.Time
}

type api struct {
	Deps
	logger *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	a := &api{Deps: d, logger: d.Logger.With("component", "http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(a.ipFilter)
	r.Use(a.authenticate)

	r.Get("/health", a.health)
	if d.Stream != nil {
		r.Handle("/ws/stream", d.Stream)
	}
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", a.status)
		r.Get("/minimal", a.minimal)
		r.Get("/info", a.info)

		r.Route("/processes", func(r chi.Router) {
			r.Get("/", a.listProcesses)
			r.Get("/top/cpu", a.topByCPU)
			r.Get("/top/memory", a.topByMemory)
			r.Get("/{pid}", a.getProcess)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", a.metricTypes)
			r.Get("/{metric}", a.history)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/pair", a.pair)
			r.Get("/validate", a.validate)
			r.Get("/devices", a.devices)
			r.Delete("/devices/{id}", a.revoke)
			r.Get("/pairing-code", a.pairingCode)
		})

		r.Route("/config", func(r chi.Router) {
			r.Get("/", a.getConfig)
			r.Post("/", a.updateConfig)
			r.Post("/reset", a.resetConfig)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", a.alertHistory)
			r.Get("/active", a.activeAlerts)
			r.Post("/{id}/acknowledge", a.acknowledgeAlert)
		})
	})

	return r
}
