package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"syslink-agent/internal/config"
)

func (a *api) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, config.Redacted(a.Config.Get()))
}

func (a *api) updateConfig(w http.ResponseWriter, r *http.Request) {
	// start from the current document so omitted sections keep their values
	cfg := a.Config.Get()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid configuration")
		return
	}
	if err := a.Config.Update(cfg); err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, "Invalid configuration")
			return
		}
		a.logger.Error("update configuration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update configuration")
		return
	}
	writeMessage(w, "Configuration updated successfully")
}

func (a *api) resetConfig(w http.ResponseWriter, _ *http.Request) {
	if err := a.Config.Reset(); err != nil {
		a.logger.Error("reset configuration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset configuration")
		return
	}
	writeMessage(w, "Configuration reset to defaults")
}
