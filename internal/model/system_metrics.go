package model

import "time"

// SystemMetrics is one point-in-time reading of all monitored hardware.
// Values are computed at construction and never mutated afterwards.
type SystemMetrics struct {
	Timestamp time.Time       `json:"timestamp"`
	Cpu       CPUMetrics      `json:"cpu"`
	Gpu       GPUMetrics      `json:"gpu"`
	Ram       RAMMetrics      `json:"ram"`
	Disks     []DiskMetrics   `json:"disks"`
	Network   NetworkMetrics  `json:"network"`
	Battery   *BatteryMetrics `json:"battery,omitempty"`
	Fans      []FanMetrics    `json:"fans"`
}

// MinimalMetrics is the lightweight view used by the simple dashboard.
type MinimalMetrics struct {
	Timestamp      time.Time `json:"timestamp"`
	CpuUsage       float64   `json:"cpuUsage"`
	GpuUsage       float64   `json:"gpuUsage"`
	RamUsage       float64   `json:"ramUsage"`
	BatteryPercent *float64  `json:"batteryPercent"`
	MaxCpuTemp     float64   `json:"maxCpuTemp"`
	GpuTemp        float64   `json:"gpuTemp"`
}

func (m SystemMetrics) Minimal() MinimalMetrics {
	out := MinimalMetrics{
		Timestamp:  m.Timestamp,
		CpuUsage:   m.Cpu.AverageUsage,
		GpuUsage:   m.Gpu.Usage,
		RamUsage:   m.Ram.UsagePercent,
		MaxCpuTemp: m.Cpu.MaxTemperature,
		GpuTemp:    m.Gpu.Temperature,
	}
	if m.Battery != nil {
		pct := m.Battery.ChargePercent
		out.BatteryPercent = &pct
	}
	return out
}

// Percent returns used/total*100, or 0 when total is not positive.
func Percent(used, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return used / total * 100
}
