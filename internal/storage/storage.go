package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"syslink-agent/internal/model"
	"syslink-agent/internal/observability/metrics"
)

var (
	ErrNotInitialized = errors.New("storage not initialized")
	ErrAlertNotFound  = errors.New("alert not found")
)

const insertBatchSize = 200

// MetricsStorage is the local time-series store. Every operation is
// serialized behind one mutex; reads and writes share it.
type MetricsStorage struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	db     *gorm.DB
	now    func() time.Time
}

type Option func(*MetricsStorage)

// WithClock overrides the wall clock used for window and cutoff resolution.
func WithClock(now func() time.Time) Option {
	return func(s *MetricsStorage) {
		if now != nil {
			s.now = now
		}
	}
}

func New(path string, logger *slog.Logger, opts ...Option) *MetricsStorage {
	s := &MetricsStorage{
		path:   path,
		logger: logger.With("component", "storage"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MetricsStorage) Path() string { return s.path }

// Initialize opens the database file and migrates the schema. Calling it
// again on an open store is a no-op.
func (s *MetricsStorage) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(s.path+"?_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open database %s: %w", s.path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.WithContext(ctx).AutoMigrate(&metricRecord{}, &alertRecord{}, &deviceRecord{}); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("migrate schema: %w", err)
	}

	s.db = db
	s.logger.Info("storage initialized", "path", s.path)
	return nil
}

// StoreSnapshot decomposes one snapshot into metric rows and writes them in
// a single transaction.
func (s *MetricsStorage) StoreSnapshot(ctx context.Context, m model.SystemMetrics) error {
	return s.StoreMetrics(ctx, SnapshotPoints(m))
}

func (s *MetricsStorage) StoreMetrics(ctx context.Context, points []model.MetricDataPoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.ObserveStorage("store", err, time.Since(start)) }()

	recs := make([]metricRecord, 0, len(points))
	for _, p := range points {
		rec, convErr := toMetricRecord(p)
		if convErr != nil {
			return fmt.Errorf("encode tags for %s: %w", p.MetricName, convErr)
		}
		recs = append(recs, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrNotInitialized
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&recs, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("insert metrics: %w", err)
	}
	return nil
}

// GetHistory resolves the query window, reads matching rows in time order
// and downsamples them to MaxPoints.
func (s *MetricsStorage) GetHistory(ctx context.Context, opts model.HistoryQueryOptions) (resp model.HistoryResponse, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("history", err, time.Since(start)) }()

	endTime := s.now().UTC()
	if opts.EndTime != nil {
		endTime = opts.EndTime.UTC()
	}
	period := opts.Period
	if period <= 0 {
		period = model.DefaultHistoryPeriod
	}
	startTime := endTime.Add(-period)
	if opts.StartTime != nil {
		startTime = opts.StartTime.UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return model.HistoryResponse{}, ErrNotInitialized
	}

	var rows []metricRecord
	err = s.db.WithContext(ctx).
		Select("timestamp", "value").
		Where("metric_type = ? AND timestamp >= ? AND timestamp <= ?",
			opts.MetricType, startTime.UnixMilli(), endTime.UnixMilli()).
		Order("timestamp ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return model.HistoryResponse{}, fmt.Errorf("query history %s: %w", opts.MetricType, err)
	}

	points := make([]model.HistoryDataPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, model.HistoryDataPoint{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Value:     r.Value,
		})
	}
	points = Downsample(points, opts.MaxPoints, opts.Aggregation)

	return model.HistoryResponse{
		MetricType:     opts.MetricType,
		StartTime:      startTime,
		EndTime:        endTime,
		DataPointCount: len(points),
		DataPoints:     points,
	}, nil
}

// CleanupOldData deletes rows older than now-retention and vacuums the file
// when anything was removed.
func (s *MetricsStorage) CleanupOldData(ctx context.Context, retention time.Duration) (deleted int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("cleanup", err, time.Since(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, ErrNotInitialized
	}

	cutoff := s.now().Add(-retention).UTC().UnixMilli()
	res := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&metricRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete old metrics: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}
	s.logger.Info("cleaned up old metric records", "count", res.RowsAffected, "retention", retention)
	if err := s.db.WithContext(ctx).Exec("VACUUM").Error; err != nil {
		return res.RowsAffected, fmt.Errorf("vacuum: %w", err)
	}
	return res.RowsAffected, nil
}

// GetStorageSize reports the database file size. A missing file is 0 bytes.
func (s *MetricsStorage) GetStorageSize() (int64, error) {
	fi, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat database: %w", err)
	}
	return fi.Size(), nil
}

func (s *MetricsStorage) SaveAlert(ctx context.Context, a model.Alert) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveStorage("save_alert", err, time.Since(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrNotInitialized
	}
	rec := toAlertRecord(a)
	if err = s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("save alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *MetricsStorage) AcknowledgeAlert(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrNotInitialized
	}
	res := s.db.WithContext(ctx).Model(&alertRecord{}).Where("id = ?", id).Update("is_acknowledged", true)
	if res.Error != nil {
		return fmt.Errorf("acknowledge alert %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// RecentAlerts returns up to limit persisted alerts, newest first.
func (s *MetricsStorage) RecentAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	var rows []alertRecord
	q := s.db.WithContext(ctx).Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out := make([]model.Alert, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *MetricsStorage) UpsertDevice(ctx context.Context, d model.PairedDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrNotInitialized
	}
	rec := toDeviceRecord(d)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "device_id"}}, UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", d.DeviceID, err)
	}
	return nil
}

func (s *MetricsStorage) ListDevices(ctx context.Context) ([]model.PairedDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	var rows []deviceRecord
	if err := s.db.WithContext(ctx).Order("paired_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	out := make([]model.PairedDevice, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Healthy pings the underlying connection.
func (s *MetricsStorage) Healthy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrNotInitialized
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *MetricsStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
