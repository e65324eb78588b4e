package model

import (
	"strings"
	"time"
)

type ProcessStatus string

const (
	ProcessRunning       ProcessStatus = "Running"
	ProcessSuspended     ProcessStatus = "Suspended"
	ProcessNotResponding ProcessStatus = "NotResponding"
	ProcessUnknown       ProcessStatus = "Unknown"
)

type ProcessInfo struct {
	Pid                int32         `json:"pid"`
	Name               string        `json:"name"`
	CpuUsage           float64       `json:"cpuUsage"`
	MemoryUsageMB      float64       `json:"memoryUsageMB"`
	MemoryUsagePercent float64       `json:"memoryUsagePercent"`
	DiskReadMBps       float64       `json:"diskReadMBps"`
	DiskWriteMBps      float64       `json:"diskWriteMBps"`
	NetworkUsageMbps   float64       `json:"networkUsageMbps"`
	Status             ProcessStatus `json:"status"`
	StartTime          time.Time     `json:"startTime"`
	WindowTitle        string        `json:"windowTitle,omitempty"`
	FilePath           string        `json:"filePath,omitempty"`
}

type ProcessSortField string

const (
	SortByName         ProcessSortField = "Name"
	SortByPid          ProcessSortField = "Pid"
	SortByCpuUsage     ProcessSortField = "CpuUsage"
	SortByMemoryUsage  ProcessSortField = "MemoryUsage"
	SortByDiskUsage    ProcessSortField = "DiskUsage"
	SortByNetworkUsage ProcessSortField = "NetworkUsage"
	SortByStartTime    ProcessSortField = "StartTime"
)

var processSortFields = []ProcessSortField{
	SortByName, SortByPid, SortByCpuUsage, SortByMemoryUsage,
	SortByDiskUsage, SortByNetworkUsage, SortByStartTime,
}

// ParseProcessSortField matches case-insensitively and falls back to CpuUsage.
func ParseProcessSortField(raw string) ProcessSortField {
	raw = strings.TrimSpace(raw)
	for _, f := range processSortFields {
		if strings.EqualFold(raw, string(f)) {
			return f
		}
	}
	return SortByCpuUsage
}

type ProcessQueryOptions struct {
	SortBy                 ProcessSortField
	SortDescending         bool
	Top                    int
	SearchTerm             string
	IncludeSystemProcesses bool
}

func DefaultProcessQueryOptions() ProcessQueryOptions {
	return ProcessQueryOptions{
		SortBy:         SortByCpuUsage,
		SortDescending: true,
		Top:            50,
	}
}

type ProcessListResponse struct {
	Timestamp         time.Time     `json:"timestamp"`
	TotalProcessCount int           `json:"totalProcessCount"`
	Processes         []ProcessInfo `json:"processes"`
	FilterApplied     *string       `json:"filterApplied"`
	SortBy            string        `json:"sortBy"`
}
