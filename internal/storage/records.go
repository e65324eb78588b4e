package storage

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"syslink-agent/internal/model"
)

// metricRecord timestamps are unix milliseconds so range scans order numerically.
type metricRecord struct {
	ID         int64          `gorm:"primaryKey;autoIncrement"`
	Timestamp  int64          `gorm:"not null;index:idx_metrics_type_time,priority:2;index:idx_metrics_timestamp"`
	MetricType string         `gorm:"size:64;not null;index:idx_metrics_type_time,priority:1"`
	MetricName string         `gorm:"size:128;not null"`
	Value      float64        `gorm:"not null"`
	Unit       string         `gorm:"size:16"`
	Tags       datatypes.JSON `gorm:"type:json"`
}

func (metricRecord) TableName() string { return "metrics" }

type alertRecord struct {
	ID             string    `gorm:"primaryKey;size:36"`
	Timestamp      time.Time `gorm:"not null;index"`
	Type           string    `gorm:"size:32;not null"`
	Severity       string    `gorm:"size:16;not null"`
	Title          string    `gorm:"size:128"`
	Message        string    `gorm:"size:512"`
	CurrentValue   float64
	ThresholdValue float64
	MetricName     string `gorm:"size:64"`
	IsAcknowledged bool   `gorm:"not null;default:false"`
}

func (alertRecord) TableName() string { return "alerts" }

type deviceRecord struct {
	DeviceID      string    `gorm:"primaryKey;size:128"`
	DeviceName    string    `gorm:"size:128;not null"`
	DeviceType    string    `gorm:"size:32"`
	PairedAt      time.Time `gorm:"not null"`
	LastConnected time.Time
	IPAddress     string `gorm:"size:64"`
	IsActive      bool   `gorm:"not null;default:true"`
}

func (deviceRecord) TableName() string { return "paired_devices" }

func toMetricRecord(p model.MetricDataPoint) (metricRecord, error) {
	rec := metricRecord{
		Timestamp:  p.Timestamp.UTC().UnixMilli(),
		MetricType: p.MetricType,
		MetricName: p.MetricName,
		Value:      p.Value,
		Unit:       p.Unit,
	}
	if len(p.Tags) > 0 {
		raw, err := json.Marshal(p.Tags)
		if err != nil {
			return metricRecord{}, err
		}
		rec.Tags = datatypes.JSON(raw)
	}
	return rec, nil
}

func toAlertRecord(a model.Alert) alertRecord {
	return alertRecord{
		ID:             a.ID,
		Timestamp:      a.Timestamp.UTC(),
		Type:           string(a.Type),
		Severity:       string(a.Severity),
		Title:          a.Title,
		Message:        a.Message,
		CurrentValue:   a.CurrentValue,
		ThresholdValue: a.ThresholdValue,
		MetricName:     a.MetricName,
		IsAcknowledged: a.IsAcknowledged,
	}
}

func (r alertRecord) toModel() model.Alert {
	return model.Alert{
		ID:             r.ID,
		Timestamp:      r.Timestamp,
		Type:           model.AlertType(r.Type),
		Severity:       model.AlertSeverity(r.Severity),
		Title:          r.Title,
		Message:        r.Message,
		CurrentValue:   r.CurrentValue,
		ThresholdValue: r.ThresholdValue,
		MetricName:     r.MetricName,
		IsAcknowledged: r.IsAcknowledged,
	}
}

func toDeviceRecord(d model.PairedDevice) deviceRecord {
	return deviceRecord{
		DeviceID:      d.DeviceID,
		DeviceName:    d.DeviceName,
		DeviceType:    d.DeviceType,
		PairedAt:      d.PairedAt.UTC(),
		LastConnected: d.LastConnected.UTC(),
		IPAddress:     d.IPAddress,
		IsActive:      d.IsActive,
	}
}

func (r deviceRecord) toModel() model.PairedDevice {
	return model.PairedDevice{
		DeviceID:      r.DeviceID,
		DeviceName:    r.DeviceName,
		DeviceType:    r.DeviceType,
		PairedAt:      r.PairedAt,
		LastConnected: r.LastConnected,
		IPAddress:     r.IPAddress,
		IsActive:      r.IsActive,
	}
}
