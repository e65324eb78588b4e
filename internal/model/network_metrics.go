package model

type NetworkMetrics struct {
	AdapterName        string  `json:"adapterName"`
	ConnectionType     string  `json:"connectionType"`
	UploadSpeedMbps    float64 `json:"uploadSpeedMbps"`
	DownloadSpeedMbps  float64 `json:"downloadSpeedMbps"`
	TotalBytesSent     uint64  `json:"totalBytesSent"`
	TotalBytesReceived uint64  `json:"totalBytesReceived"`
	IPAddress          string  `json:"ipAddress"`
	IsConnected        bool    `json:"isConnected"`
}
