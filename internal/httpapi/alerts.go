package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"syslink-agent/internal/model"
)

const defaultAlertCount = 100

func (a *api) alertHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNilAlerts(a.Alerts.History(queryInt(r, "count", defaultAlertCount))))
}

func (a *api) activeAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nonNilAlerts(a.Alerts.Active()))
}

func (a *api) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.Alerts.Acknowledge(id) {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}
	if a.AlertStore != nil {
		if err := a.AlertStore.AcknowledgeAlert(r.Context(), id); err != nil {
			// the in-memory state is authoritative; the stored row may lag
			a.logger.Warn("persist alert acknowledgement failed", "alert_id", id, "error", err)
		}
	}
	writeMessage(w, "Alert acknowledged")
}

func nonNilAlerts(in []model.Alert) []model.Alert {
	if in == nil {
		return []model.Alert{}
	}
	return in
}
