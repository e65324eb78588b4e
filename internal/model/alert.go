package model

import "time"

type AlertType string

const (
	AlertCpuTemperature       AlertType = "CpuTemperature"
	AlertGpuTemperature       AlertType = "GpuTemperature"
	AlertCpuUsage             AlertType = "CpuUsage"
	AlertGpuUsage             AlertType = "GpuUsage"
	AlertRamUsage             AlertType = "RamUsage"
	AlertDiskUsage            AlertType = "DiskUsage"
	AlertBatteryLow           AlertType = "BatteryLow"
	AlertBatteryHigh          AlertType = "BatteryHigh"
	AlertNetworkDisconnected  AlertType = "NetworkDisconnected"
	AlertProcessNotResponding AlertType = "ProcessNotResponding"
	AlertCustom               AlertType = "Custom"
)

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "Info"
	SeverityWarning  AlertSeverity = "Warning"
	SeverityCritical AlertSeverity = "Critical"
)

type Alert struct {
	ID             string        `json:"id"`
	Timestamp      time.Time     `json:"timestamp"`
	Type           AlertType     `json:"type"`
	Severity       AlertSeverity `json:"severity"`
	Title          string        `json:"title"`
	Message        string        `json:"message"`
	CurrentValue   float64       `json:"currentValue"`
	ThresholdValue float64       `json:"thresholdValue"`
	MetricName     string        `json:"metricName"`
	IsAcknowledged bool          `json:"isAcknowledged"`
}
