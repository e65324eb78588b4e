package model

type RAMMetrics struct {
	TotalGB          float64 `json:"totalGB"`
	UsedGB           float64 `json:"usedGB"`
	FreeGB           float64 `json:"freeGB"`
	UsagePercent     float64 `json:"usagePercent"`
	SwapTotalGB      float64 `json:"swapTotalGB"`
	SwapUsedGB       float64 `json:"swapUsedGB"`
	SwapUsagePercent float64 `json:"swapUsagePercent"`
}

// NewRAMMetrics fills the derived fields from totals.
func NewRAMMetrics(totalGB, usedGB, swapTotalGB, swapUsedGB float64) RAMMetrics {
	return RAMMetrics{
		TotalGB:          totalGB,
		UsedGB:           usedGB,
		FreeGB:           totalGB - usedGB,
		UsagePercent:     Percent(usedGB, totalGB),
		SwapTotalGB:      swapTotalGB,
		SwapUsedGB:       swapUsedGB,
		SwapUsagePercent: Percent(swapUsedGB, swapTotalGB),
	}
}
