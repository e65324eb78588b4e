package stream

import (
	"encoding/json"
	"time"

	"syslink-agent/internal/model"
)

// EncodePayload frames data as {type, timestamp, data}.
func EncodePayload(typ model.PayloadType, at time.Time, data any) ([]byte, error) {
	return json.Marshal(model.StreamPayload{Type: typ, Timestamp: at.UTC(), Data: data})
}

// channelFor maps a server payload to the subscription channel that receives it.
func channelFor(typ model.PayloadType) string {
	if typ == model.PayloadAlert {
		return model.ChannelAlerts
	}
	return model.ChannelMetrics
}
