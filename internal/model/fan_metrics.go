package model

type FanType string

const (
	FanCase  FanType = "CaseFan"
	FanCPU   FanType = "CpuFan"
	FanGPU   FanType = "GpuFan"
	FanPump  FanType = "PumpFan"
	FanOther FanType = "Other"
)

type FanMetrics struct {
	Name         string  `json:"name"`
	RPM          float64 `json:"rpm"`
	SpeedPercent float64 `json:"speedPercent"`
	Type         FanType `json:"type"`
}
