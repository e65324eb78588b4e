package httpapi

import (
	"net/http"
)

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	m, err := a.Hardware.GetMetrics(r.Context())
	if err != nil {
		if a.Snapshots != nil {
			if last, ok := a.Snapshots.Last(); ok {
				a.logger.Warn("live metrics unavailable, serving last snapshot", "error", err)
				writeJSON(w, http.StatusOK, last)
				return
			}
		}
		a.logger.Error("get system status failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get system status")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *api) minimal(w http.ResponseWriter, r *http.Request) {
	m, err := a.Hardware.GetMinimal(r.Context())
	if err != nil {
		a.logger.Error("get minimal metrics failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get minimal metrics")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *api) info(w http.ResponseWriter, r *http.Request) {
	info, err := a.Hardware.GetSystemInfo(r.Context())
	if err != nil {
		a.logger.Error("get system info failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get system info")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":    "healthy",
		"timestamp": a.Now().UTC(),
	}
	if a.Health != nil {
		body["checks"] = a.Health.Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}
