package hardware

import (
	"context"
	"errors"

	"syslink-agent/internal/config"
	"syslink-agent/internal/model"
)

var ErrProcessNotFound = errors.New("process not found")

// Source produces typed hardware snapshots.
type Source interface {
	GetMetrics(ctx context.Context) (model.SystemMetrics, error)
	GetMinimal(ctx context.Context) (model.MinimalMetrics, error)
	GetSystemInfo(ctx context.Context) (model.SystemInfo, error)
}

// ProcessSource enumerates running processes.
type ProcessSource interface {
	List(ctx context.Context, opts model.ProcessQueryOptions) (model.ProcessListResponse, error)
	Get(ctx context.Context, pid int32) (model.ProcessInfo, error)
	TopByCPU(ctx context.Context, n int) ([]model.ProcessInfo, error)
	TopByMemory(ctx context.Context, n int) ([]model.ProcessInfo, error)
}

// SettingsSource supplies the live monitoring toggles.
type SettingsSource interface {
	Get() config.AgentConfig
}

const (
	bytesPerGB = 1024 * 1024 * 1024
	bytesPerMB = 1024 * 1024
)

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func toGB(b uint64) float64 { return float64(b) / bytesPerGB }
func toMB(b uint64) float64 { return float64(b) / bytesPerMB }
