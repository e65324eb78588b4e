package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"syslink-agent/internal/config"
	"syslink-agent/internal/model"
	"syslink-agent/internal/observability/metrics"
)

const (
	historyLimit      = 1000
	defaultBufferSize = 64
)

type cooldownKey struct {
	alertType  model.AlertType
	metricName string
}

// Engine evaluates snapshots against thresholds. State is owned by the
// instance and guarded by one mutex.
type Engine struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	settings config.AlertSettings
	history  []model.Alert
	lastSeen map[cooldownKey]time.Time

	out chan model.Alert
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithBufferSize sets the capacity of the Alerts channel.
func WithBufferSize(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.out = make(chan model.Alert, n)
		}
	}
}

func NewEngine(settings config.AlertSettings, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:   logger.With("component", "alerts"),
		now:      time.Now,
		settings: settings,
		lastSeen: make(map[cooldownKey]time.Time),
		out:      make(chan model.Alert, defaultBufferSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Alerts delivers every newly raised alert. When the consumer falls behind
// the alert is kept in history but not queued.
func (e *Engine) Alerts() <-chan model.Alert {
	return e.out
}

// CheckMetrics evaluates one snapshot and returns the alerts it raised.
func (e *Engine) CheckMetrics(m model.SystemMetrics) []model.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.settings
	if !s.EnableAlerts {
		return nil
	}
	cooldown := s.Cooldown()
	var raised []model.Alert
	try := func(c candidate) {
		if a, ok := e.raiseLocked(c, cooldown); ok {
			raised = append(raised, a)
		}
	}

	if m.Cpu.MaxTemperature > s.CpuTempThreshold {
		try(candidate{
			alertType: model.AlertCpuTemperature, severity: model.SeverityWarning,
			title:   "High CPU Temperature",
			message: fmt.Sprintf("CPU temperature is %.1f°C", m.Cpu.MaxTemperature),
			value:   m.Cpu.MaxTemperature, threshold: s.CpuTempThreshold, metricName: "CPU Temperature",
		})
	}
	if m.Gpu.Temperature > s.GpuTempThreshold {
		try(candidate{
			alertType: model.AlertGpuTemperature, severity: model.SeverityWarning,
			title:   "High GPU Temperature",
			message: fmt.Sprintf("GPU temperature is %.1f°C", m.Gpu.Temperature),
			value:   m.Gpu.Temperature, threshold: s.GpuTempThreshold, metricName: "GPU Temperature",
		})
	}
	if m.Cpu.AverageUsage > s.CpuUsageThreshold {
		try(candidate{
			alertType: model.AlertCpuUsage, severity: model.SeverityInfo,
			title:   "High CPU Usage",
			message: fmt.Sprintf("CPU usage is %.1f%%", m.Cpu.AverageUsage),
			value:   m.Cpu.AverageUsage, threshold: s.CpuUsageThreshold, metricName: "CPU Usage",
		})
	}
	if m.Ram.UsagePercent > s.RamUsageThreshold {
		try(candidate{
			alertType: model.AlertRamUsage, severity: model.SeverityWarning,
			title:   "High RAM Usage",
			message: fmt.Sprintf("RAM usage is %.1f%%", m.Ram.UsagePercent),
			value:   m.Ram.UsagePercent, threshold: s.RamUsageThreshold, metricName: "RAM Usage",
		})
	}
	if b := m.Battery; b != nil {
		if b.ChargePercent < s.BatteryLowThreshold && b.Status == model.BatteryDischarging {
			try(candidate{
				alertType: model.AlertBatteryLow, severity: model.SeverityWarning,
				title:   "Low Battery",
				message: fmt.Sprintf("Battery is at %.1f%%", b.ChargePercent),
				value:   b.ChargePercent, threshold: s.BatteryLowThreshold, metricName: "Battery",
			})
		}
		if s.BatteryHighThreshold > 0 && b.ChargePercent > s.BatteryHighThreshold && b.Status == model.BatteryCharging {
			try(candidate{
				alertType: model.AlertBatteryHigh, severity: model.SeverityInfo,
				title:   "Battery Charged",
				message: fmt.Sprintf("Battery is at %.1f%%, consider unplugging", b.ChargePercent),
				value:   b.ChargePercent, threshold: s.BatteryHighThreshold, metricName: "Battery",
			})
		}
	}
	for _, d := range m.Disks {
		if d.UsagePercent > s.DiskUsageThreshold {
			try(candidate{
				alertType: model.AlertDiskUsage, severity: model.SeverityWarning,
				title:   "High Disk Usage",
				message: fmt.Sprintf("Disk %s is %.1f%% full", d.DriveLetter, d.UsagePercent),
				value:   d.UsagePercent, threshold: s.DiskUsageThreshold, metricName: "Disk " + d.DriveLetter,
			})
		}
	}
	if m.Network.AdapterName != "" && !m.Network.IsConnected {
		try(candidate{
			alertType: model.AlertNetworkDisconnected, severity: model.SeverityWarning,
			title:      "Network Disconnected",
			message:    fmt.Sprintf("Adapter %s is not connected", m.Network.AdapterName),
			metricName: "Network " + m.Network.AdapterName,
		})
	}
	return raised
}

type candidate struct {
	alertType  model.AlertType
	severity   model.AlertSeverity
	title      string
	message    string
	value      float64
	threshold  float64
	metricName string
}

func (e *Engine) raiseLocked(c candidate, cooldown time.Duration) (model.Alert, bool) {
	now := e.now()
	key := cooldownKey{alertType: c.alertType, metricName: c.metricName}
	if last, ok := e.lastSeen[key]; ok && now.Sub(last) < cooldown {
		return model.Alert{}, false
	}

	a := model.Alert{
		ID:             uuid.NewString(),
		Timestamp:      now.UTC(),
		Type:           c.alertType,
		Severity:       c.severity,
		Title:          c.title,
		Message:        c.message,
		CurrentValue:   c.value,
		ThresholdValue: c.threshold,
		MetricName:     c.metricName,
	}
	e.history = append(e.history, a)
	if over := len(e.history) - historyLimit; over > 0 {
		e.history = append(e.history[:0:0], e.history[over:]...)
	}
	e.lastSeen[key] = now
	metrics.IncAlertRaised(string(a.Type))

	e.logger.Warn("alert triggered", "type", a.Type, "title", a.Title, "message", a.Message)
	select {
	case e.out <- a:
	default:
		metrics.IncAlertDropped()
		e.logger.Warn("alert queue full, notification dropped", "id", a.ID, "type", a.Type)
	}
	return a, true
}

// Active returns unacknowledged alerts, oldest first.
func (e *Engine) Active() []model.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Alert, 0)
	for _, a := range e.history {
		if !a.IsAcknowledged {
			out = append(out, a)
		}
	}
	return out
}

// History returns up to count alerts, newest first.
func (e *Engine) History(count int) []model.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	if count <= 0 || count > len(e.history) {
		count = len(e.history)
	}
	out := make([]model.Alert, 0, count)
	for i := len(e.history) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, e.history[i])
	}
	return out
}

// Acknowledge marks the alert as handled and reports whether it exists.
func (e *Engine) Acknowledge(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.history {
		if e.history[i].ID == id {
			e.history[i].IsAcknowledged = true
			return true
		}
	}
	return false
}

func (e *Engine) UpdateThresholds(s config.AlertSettings) {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	e.logger.Info("alert thresholds updated")
}

// WatchConfig applies alert settings from every config change until ctx ends.
func (e *Engine) WatchConfig(ctx context.Context, changes <-chan config.AgentConfig) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-changes:
			if !ok {
				return nil
			}
			e.UpdateThresholds(cfg.Alerts)
		}
	}
}
