package model

type CPUMetrics struct {
	Name               string           `json:"name"`
	AverageUsage       float64          `json:"averageUsage"`
	AverageTemperature float64          `json:"averageTemperature"`
	MaxTemperature     float64          `json:"maxTemperature"`
	TotalPower         float64          `json:"totalPower"`
	Cores              []CPUCoreMetrics `json:"cores"`
}

type CPUCoreMetrics struct {
	CoreID      int     `json:"coreId"`
	Usage       float64 `json:"usage"`
	Temperature float64 `json:"temperature"`
	ClockSpeed  float64 `json:"clockSpeed"`
}
