package storage

import (
	"fmt"

	"syslink-agent/internal/model"
)

const (
	unitPercent = "%"
	unitCelsius = "°C"
	unitMbps    = "Mbps"
	unitMBps    = "MB/s"
)

// SnapshotPoints is the fixed set of rows persisted for one snapshot.
func SnapshotPoints(m model.SystemMetrics) []model.MetricDataPoint {
	ts := m.Timestamp
	point := func(metricType, name string, v float64, unit string) model.MetricDataPoint {
		return model.MetricDataPoint{Timestamp: ts, MetricType: metricType, MetricName: name, Value: v, Unit: unit}
	}

	out := make([]model.MetricDataPoint, 0, 8+3*len(m.Disks))
	out = append(out,
		point(model.MetricCpuUsage, "cpu_avg", m.Cpu.AverageUsage, unitPercent),
		point(model.MetricCpuTemperature, "cpu_max_temp", m.Cpu.MaxTemperature, unitCelsius),
		point(model.MetricGpuUsage, "gpu_usage", m.Gpu.Usage, unitPercent),
		point(model.MetricGpuTemperature, "gpu_temp", m.Gpu.Temperature, unitCelsius),
		point(model.MetricRamUsage, "ram_percent", m.Ram.UsagePercent, unitPercent),
		point(model.MetricNetworkUpload, "net_up", m.Network.UploadSpeedMbps, unitMbps),
		point(model.MetricNetworkDownload, "net_down", m.Network.DownloadSpeedMbps, unitMbps),
	)
	if m.Battery != nil {
		out = append(out, point(model.MetricBatteryPercent, "battery", m.Battery.ChargePercent, unitPercent))
	}
	for _, d := range m.Disks {
		key := d.Key()
		tags := map[string]string{"disk": d.DriveLetter}
		for _, p := range []model.MetricDataPoint{
			point(model.MetricDiskRead, fmt.Sprintf("disk_%s_read", key), d.ReadSpeedMBps, unitMBps),
			point(model.MetricDiskWrite, fmt.Sprintf("disk_%s_write", key), d.WriteSpeedMBps, unitMBps),
			point(model.MetricDiskUsage, fmt.Sprintf("disk_%s_usage", key), d.UsagePercent, unitPercent),
		} {
			p.Tags = tags
			out = append(out, p)
		}
	}
	return out
}
