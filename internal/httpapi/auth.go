package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"syslink-agent/internal/auth"
	"syslink-agent/internal/model"
)

func (a *api) pair(w http.ResponseWriter, r *http.Request) {
	var req model.PairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.PairResponse{Success: false, Error: "Invalid pairing request"})
		return
	}
	a.logger.Info("pairing request", "device_name", req.DeviceName, "remote", clientIP(r))

	resp, err := a.Auth.Pair(r.Context(), req, clientIP(r))
	switch {
	case errors.Is(err, auth.ErrInvalidPairRequest):
		writeJSON(w, http.StatusBadRequest, resp)
	case err != nil:
		a.logger.Error("pairing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, model.PairResponse{Success: false, Error: "Pairing failed due to server error"})
	case !resp.Success:
		writeJSON(w, http.StatusBadRequest, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

func (a *api) validate(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}
	if !a.Auth.ValidateToken(r.Context(), token) {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (a *api) devices(w http.ResponseWriter, _ *http.Request) {
	devices := a.Auth.Devices()
	if devices == nil {
		devices = []model.PairedDevice{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (a *api) revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.Auth.Revoke(r.Context(), id) {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}
	writeMessage(w, "Device access revoked")
}

func (a *api) pairingCode(w http.ResponseWriter, _ *http.Request) {
	code, err := a.Auth.GeneratePairingCode()
	if err != nil {
		a.logger.Error("generate pairing code failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate pairing code")
		return
	}
	writeJSON(w, http.StatusOK, model.PairingCodeResponse{
		Code:       code,
		ExpiresIn:  int(auth.PairingCodeTTL.Seconds()),
		ServerName: a.Auth.ServerName(),
	})
}
