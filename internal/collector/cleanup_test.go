package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"syslink-agent/internal/config"
)

type fakeRetentionStore struct {
	retentions []time.Duration
	sizes      []int64
	cleanupErr error
}

func (f *fakeRetentionStore) CleanupOldData(_ context.Context, retention time.Duration) (int64, error) {
	if f.cleanupErr != nil {
		return 0, f.cleanupErr
	}
	f.retentions = append(f.retentions, retention)
	return 10, nil
}

func (f *fakeRetentionStore) GetStorageSize() (int64, error) {
	if len(f.sizes) == 0 {
		return 0, nil
	}
	size := f.sizes[0]
	if len(f.sizes) > 1 {
		f.sizes = f.sizes[1:]
	}
	return size, nil
}

func TestCleanupUsesConfiguredRetention(t *testing.T) {
	cfg := config.DefaultAgentConfig()
	store := &fakeRetentionStore{sizes: []int64{1024}}
	c := NewCleanupService(discardLogger(), store, &fakeSettings{cfg: cfg}, 0, 0)

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(store.retentions) != 1 || store.retentions[0] != 24*time.Hour {
		t.Fatalf("unexpected retentions %v", store.retentions)
	}
}

func TestCleanupHalvesRetentionWhenOverCap(t *testing.T) {
	cfg := config.DefaultAgentConfig()
	cfg.Storage.MaxDatabaseSizeMB = 1
	settings := &fakeSettings{cfg: cfg}
	store := &fakeRetentionStore{sizes: []int64{2 << 20, 512 << 10}}
	c := NewCleanupService(discardLogger(), store, settings, 0, 0)

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(store.retentions) != 2 || store.retentions[1] != 12*time.Hour {
		t.Fatalf("expected a second pass at half retention, got %v", store.retentions)
	}
	if settings.Get().Storage.RetentionHours != 24 {
		t.Fatalf("reduced retention must not be persisted")
	}
}

func TestCleanupPropagatesStoreErrors(t *testing.T) {
	store := &fakeRetentionStore{cleanupErr: errors.New("disk I/O error")}
	c := NewCleanupService(discardLogger(), store, &fakeSettings{cfg: config.DefaultAgentConfig()}, 0, 0)
	if err := c.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
