package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"syslink-agent/internal/config"
	"syslink-agent/internal/model"
	"syslink-agent/internal/observability/metrics"
)

type MetricsSource interface {
	GetMetrics(ctx context.Context) (model.SystemMetrics, error)
}

type SnapshotStore interface {
	StoreSnapshot(ctx context.Context, m model.SystemMetrics) error
}

type AlertChecker interface {
	CheckMetrics(m model.SystemMetrics) []model.Alert
}

type SettingsSource interface {
	Get() config.AgentConfig
}

// SampleMarker records the time of the latest successful collection.
type SampleMarker interface {
	MarkSample(ts time.Time)
}

// Scheduler reads the hardware source on every tick, feeds alert evaluation
// and persists a snapshot once per storage interval.
type Scheduler struct {
	logger       *slog.Logger
	source       MetricsSource
	store        SnapshotStore
	alerts       AlertChecker
	settings     SettingsSource
	marker       SampleMarker
	errorBackoff time.Duration
	now          func() time.Time

	mu         sync.RWMutex
	last       model.SystemMetrics
	hasLast    bool
	lastStored time.Time
}

func NewScheduler(
	logger *slog.Logger,
	source MetricsSource,
	store SnapshotStore,
	alerts AlertChecker,
	settings SettingsSource,
	marker SampleMarker,
	errorBackoff time.Duration,
) *Scheduler {
	if errorBackoff <= 0 {
		errorBackoff = time.Second
	}
	return &Scheduler{
		logger:       logger.With("component", "collector"),
		source:       source,
		store:        store,
		alerts:       alerts,
		settings:     settings,
		marker:       marker,
		errorBackoff: errorBackoff,
		now:          time.Now,
	}
}

func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("collection scheduler started")
	for {
		if ctx.Err() != nil {
			s.logger.Info("collection scheduler stopped")
			return nil
		}
		cfg := s.settings.Get()

		// a tick that has started runs to completion even when shutdown begins
		if err := s.tick(context.WithoutCancel(ctx), cfg.Storage.StorageInterval()); err != nil {
			s.logger.Error("collection tick failed", "error", err)
			sleepWithContext(ctx, s.errorBackoff)
			continue
		}
		sleepWithContext(ctx, cfg.Monitoring.UpdateInterval())
	}
}

// Last returns the most recent snapshot, if any tick has succeeded.
func (s *Scheduler) Last() (model.SystemMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

func (s *Scheduler) tick(ctx context.Context, storageInterval time.Duration) (err error) {
	started := s.now()
	defer func() { metrics.ObserveCollection(err, s.now().Sub(started)) }()

	m, err := s.source.GetMetrics(ctx)
	if err != nil {
		return fmt.Errorf("read hardware: %w", err)
	}

	s.mu.Lock()
	s.last, s.hasLast = m, true
	due := started.Sub(s.lastStored) >= storageInterval
	s.mu.Unlock()

	if s.marker != nil {
		s.marker.MarkSample(m.Timestamp)
	}
	if s.alerts != nil {
		if raised := s.alerts.CheckMetrics(m); len(raised) > 0 {
			s.logger.Debug("alerts raised", "count", len(raised))
		}
	}

	if !due {
		return nil
	}
	if err := s.store.StoreSnapshot(ctx, m); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	s.mu.Lock()
	s.lastStored = started
	s.mu.Unlock()
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
