package model

import "time"

type PayloadType string

const (
	PayloadMetrics   PayloadType = "metrics"
	PayloadProcesses PayloadType = "processes"
	PayloadPong      PayloadType = "pong"
	PayloadAlert     PayloadType = "alert"
)

// StreamPayload is the framing for every server-to-client websocket message.
type StreamPayload struct {
	Type      PayloadType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// StreamRequest is a client-to-server websocket message.
type StreamRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const (
	ChannelMetrics = "metrics"
	ChannelAlerts  = "alerts"
)
