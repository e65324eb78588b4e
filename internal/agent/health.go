package agent

import (
	"sync/atomic"
	"time"
)

type HealthStatus struct {
	startedAt         time.Time
	storageOK         atomic.Bool
	libvirtEnabled    atomic.Bool
	libvirtConnected  atomic.Bool
	relayEnabled      atomic.Bool
	relayConnected    atomic.Bool
	lastSampleAt      atomic.Int64
	streamConnections atomic.Int64
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{startedAt: time.Now().UTC()}
}

func (h *HealthStatus) SetStorageOK(ok bool) {
	h.storageOK.Store(ok)
}

func (h *HealthStatus) EnableLibvirt() {
	h.libvirtEnabled.Store(true)
}

func (h *HealthStatus) SetLibvirtConnected(ok bool) {
	h.libvirtConnected.Store(ok)
}

func (h *HealthStatus) EnableRelay() {
	h.relayEnabled.Store(true)
}

func (h *HealthStatus) SetRelayConnected(ok bool) {
	h.relayConnected.Store(ok)
}

// MarkSample records the time of the latest successful collection.
func (h *HealthStatus) MarkSample(ts time.Time) {
	h.lastSampleAt.Store(ts.UnixNano())
}

func (h *HealthStatus) SetStreamConnections(n int) {
	h.streamConnections.Store(int64(n))
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"storage_ok":         h.storageOK.Load(),
		"stream_connections": h.streamConnections.Load(),
		"started_at":         h.startedAt,
	}
	if h.libvirtEnabled.Load() {
		out["libvirt_connected"] = h.libvirtConnected.Load()
	}
	if h.relayEnabled.Load() {
		out["relay_connected"] = h.relayConnected.Load()
	}
	if v := h.lastSampleAt.Load(); v > 0 {
		out["last_sample_at"] = time.Unix(0, v).UTC()
	}
	return out
}
