package model

type GPUMetrics struct {
	Name             string  `json:"name"`
	Temperature      float64 `json:"temperature"`
	Usage            float64 `json:"usage"`
	VramUsed         float64 `json:"vramUsed"`
	VramTotal        float64 `json:"vramTotal"`
	VramUsagePercent float64 `json:"vramUsagePercent"`
	CoreClock        float64 `json:"coreClock"`
	MemoryClock      float64 `json:"memoryClock"`
	Power            float64 `json:"power"`
	FanSpeed         float64 `json:"fanSpeed"`
}
