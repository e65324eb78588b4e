package model

import "time"

// SystemInfo holds static details about the host.
type SystemInfo struct {
	DeviceName      string    `json:"deviceName"`
	OperatingSystem string    `json:"operatingSystem"`
	OsVersion       string    `json:"osVersion"`
	CpuName         string    `json:"cpuName"`
	CpuCores        int       `json:"cpuCores"`
	CpuThreads      int       `json:"cpuThreads"`
	GpuName         string    `json:"gpuName"`
	TotalRamGB      float64   `json:"totalRamGB"`
	Motherboard     string    `json:"motherboard"`
	BootTime        time.Time `json:"bootTime"`
	UptimeSeconds   int64     `json:"uptimeSeconds"`
	AgentVersion    string    `json:"agentVersion"`
	HasBattery      bool      `json:"hasBattery"`
}
