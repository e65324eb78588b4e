package hardware

import (
	"github.com/distatus/battery"

	"syslink-agent/internal/model"
)

// readBattery reports the first system battery, or nil when none is present.
func readBattery() *model.BatteryMetrics {
	bats, _ := battery.GetAll()
	for _, b := range bats {
		if b == nil || b.Full <= 0 {
			continue
		}
		m := batteryMetrics(b)
		return &m
	}
	return nil
}

func batteryMetrics(b *battery.Battery) model.BatteryMetrics {
	charge := clampPercent(b.Current / b.Full * 100)
	status := batteryStatus(b.State.Raw)
	out := model.BatteryMetrics{
		IsPresent:            true,
		ChargePercent:        charge,
		Status:               status,
		DesignCapacityWh:     b.Design / 1000,
		FullChargeCapacityWh: b.Full / 1000,
		WearLevel:            model.WearLevelPercent(b.Design, b.Full),
		Voltage:              b.Voltage,
	}

	rateW := b.ChargeRate / 1000
	switch status {
	case model.BatteryCharging:
		out.ChargeRateW = rateW
		if b.ChargeRate > 0 {
			secs := (b.Full - b.Current) / b.ChargeRate * 3600
			out.EstimatedTimeRemaining = &secs
		}
	case model.BatteryDischarging:
		out.DischargeRateW = rateW
		if b.ChargeRate > 0 {
			secs := b.Current / b.ChargeRate * 3600
			out.EstimatedTimeRemaining = &secs
		}
	}
	return out
}

func batteryStatus(state battery.AgnosticState) model.BatteryStatus {
	switch state {
	case battery.Charging:
		return model.BatteryCharging
	case battery.Discharging:
		return model.BatteryDischarging
	case battery.Full:
		return model.BatteryFull
	case battery.Idle:
		return model.BatteryNotCharging
	case battery.Empty:
		return model.BatteryCritical
	default:
		return model.BatteryUnknown
	}
}
