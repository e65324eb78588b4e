package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"syslink-agent/internal/observability/metrics"
)

const (
	DefaultCleanupInterval = time.Hour
	DefaultCleanupRetry    = 5 * time.Minute
)

type RetentionStore interface {
	CleanupOldData(ctx context.Context, retention time.Duration) (int64, error)
	GetStorageSize() (int64, error)
}

// CleanupService deletes expired history and keeps the database under its
// size cap by halving retention for a single pass when needed.
type CleanupService struct {
	logger   *slog.Logger
	store    RetentionStore
	settings SettingsSource
	interval time.Duration
	retry    time.Duration
}

func NewCleanupService(logger *slog.Logger, store RetentionStore, settings SettingsSource, interval, retry time.Duration) *CleanupService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if retry <= 0 {
		retry = DefaultCleanupRetry
	}
	return &CleanupService{
		logger:   logger.With("component", "cleanup"),
		store:    store,
		settings: settings,
		interval: interval,
		retry:    retry,
	}
}

func (c *CleanupService) Run(ctx context.Context) error {
	c.logger.Info("data cleanup service started", "interval", c.interval)
	for {
		if ctx.Err() != nil {
			return nil
		}
		wait := c.interval
		if err := c.RunOnce(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error("data cleanup failed", "error", err, "retry_in", c.retry)
			wait = c.retry
		}
		sleepWithContext(ctx, wait)
	}
}

// RunOnce applies the configured retention and, if the database is still
// larger than the cap, applies half of it. The reduced window is not saved.
func (c *CleanupService) RunOnce(ctx context.Context) error {
	storage := c.settings.Get().Storage
	retention := storage.Retention()

	deleted, err := c.store.CleanupOldData(ctx, retention)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	size, err := c.store.GetStorageSize()
	if err != nil {
		return fmt.Errorf("storage size: %w", err)
	}
	metrics.SetStorageSize(size)
	c.logger.Info("data cleanup completed", "deleted", deleted, "size_bytes", size)

	limit := storage.MaxDatabaseBytes()
	if limit <= 0 || size <= limit {
		return nil
	}

	c.logger.Warn("database exceeds size cap, applying reduced retention",
		"size_bytes", size, "limit_bytes", limit, "retention", retention/2)
	deleted, err = c.store.CleanupOldData(ctx, retention/2)
	if err != nil {
		return fmt.Errorf("reduced cleanup: %w", err)
	}
	if size, err = c.store.GetStorageSize(); err == nil {
		metrics.SetStorageSize(size)
	}
	c.logger.Info("reduced cleanup completed", "deleted", deleted, "size_bytes", size)
	return nil
}
