package model

import "strings"

type DiskMetrics struct {
	Name           string  `json:"name"`
	DriveLetter    string  `json:"driveLetter"`
	TotalGB        float64 `json:"totalGB"`
	UsedGB         float64 `json:"usedGB"`
	FreeGB         float64 `json:"freeGB"`
	UsagePercent   float64 `json:"usagePercent"`
	ReadSpeedMBps  float64 `json:"readSpeedMBps"`
	WriteSpeedMBps float64 `json:"writeSpeedMBps"`
	Temperature    float64 `json:"temperature"`
	HealthStatus   string  `json:"healthStatus"`
}

// Key is the drive label reduced to characters safe for metric names.
// "C:" becomes "C", "/" becomes "root" and "/home/data" becomes "home_data".
func (d DiskMetrics) Key() string {
	label := strings.TrimSpace(d.DriveLetter)
	if label == "" {
		label = d.Name
	}
	var b strings.Builder
	lastSep := true
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		default:
			if !lastSep {
				b.WriteByte('_')
				lastSep = true
			}
		}
	}
	key := strings.TrimSuffix(b.String(), "_")
	if key == "" {
		return "root"
	}
	return key
}
