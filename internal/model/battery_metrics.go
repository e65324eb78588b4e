package model

type BatteryStatus string

const (
	BatteryUnknown     BatteryStatus = "Unknown"
	BatteryCharging    BatteryStatus = "Charging"
	BatteryDischarging BatteryStatus = "Discharging"
	BatteryFull        BatteryStatus = "Full"
	BatteryNotCharging BatteryStatus = "NotCharging"
	BatteryCritical    BatteryStatus = "Critical"
)

type BatteryMetrics struct {
	IsPresent              bool          `json:"isPresent"`
	ChargePercent          float64       `json:"chargePercent"`
	Status                 BatteryStatus `json:"status"`
	DesignCapacityWh       float64       `json:"designCapacityWh"`
	FullChargeCapacityWh   float64       `json:"fullChargeCapacityWh"`
	WearLevel              float64       `json:"wearLevel"`
	EstimatedTimeRemaining *float64      `json:"estimatedTimeRemainingSeconds,omitempty"`
	CycleCount             int           `json:"cycleCount"`
	ChargeRateW            float64       `json:"chargeRateW"`
	DischargeRateW         float64       `json:"dischargeRateW"`
	Voltage                float64       `json:"voltage"`
}

// WearLevelPercent is the capacity lost relative to the design capacity.
func WearLevelPercent(designWh, fullWh float64) float64 {
	if designWh <= 0 {
		return 0
	}
	return (1 - fullWh/designWh) * 100
}
