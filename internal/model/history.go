package model

import (
	"strings"
	"time"
)

const (
	MetricCpuUsage        = "cpu_usage"
	MetricCpuTemperature  = "cpu_temp"
	MetricGpuUsage        = "gpu_usage"
	MetricGpuTemperature  = "gpu_temp"
	MetricRamUsage        = "ram_usage"
	MetricNetworkUpload   = "net_upload"
	MetricNetworkDownload = "net_download"
	MetricBatteryPercent  = "battery_percent"
	MetricDiskUsage       = "disk_usage"
	MetricDiskRead        = "disk_read"
	MetricDiskWrite       = "disk_write"
)

// MetricTypes is the fixed catalog accepted by history queries.
var MetricTypes = []string{
	MetricCpuUsage, MetricCpuTemperature, MetricGpuUsage, MetricGpuTemperature,
	MetricRamUsage, MetricNetworkUpload, MetricNetworkDownload, MetricBatteryPercent,
	MetricDiskUsage, MetricDiskRead, MetricDiskWrite,
}

// NormalizeMetricType returns the catalog spelling of raw, matched case-insensitively.
func NormalizeMetricType(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, t := range MetricTypes {
		if strings.EqualFold(raw, t) {
			return t, true
		}
	}
	return "", false
}

func IsValidMetricType(raw string) bool {
	_, ok := NormalizeMetricType(raw)
	return ok
}

// MetricDataPoint is one stored time-series row.
type MetricDataPoint struct {
	ID         int64             `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	MetricType string            `json:"metricType"`
	MetricName string            `json:"metricName"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

type Aggregation string

const (
	AggregationNone    Aggregation = "none"
	AggregationAverage Aggregation = "average"
	AggregationMin     Aggregation = "min"
	AggregationMax     Aggregation = "max"
	AggregationSum     Aggregation = "sum"
)

// ParseAggregation accepts any case and "avg"; unknown values mean average.
func ParseAggregation(raw string) Aggregation {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none":
		return AggregationNone
	case "min":
		return AggregationMin
	case "max":
		return AggregationMax
	case "sum":
		return AggregationSum
	default:
		return AggregationAverage
	}
}

const (
	DefaultHistoryPeriod    = time.Hour
	DefaultHistoryMaxPoints = 360
)

type HistoryQueryOptions struct {
	MetricType  string
	StartTime   *time.Time
	EndTime     *time.Time
	Period      time.Duration
	MaxPoints   int
	Aggregation Aggregation
}

type HistoryResponse struct {
	MetricType     string             `json:"metricType"`
	StartTime      time.Time          `json:"startTime"`
	EndTime        time.Time          `json:"endTime"`
	DataPointCount int                `json:"dataPointCount"`
	DataPoints     []HistoryDataPoint `json:"dataPoints"`
}

type HistoryDataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Min       *float64  `json:"min,omitempty"`
	Max       *float64  `json:"max,omitempty"`
}
