package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"syslink-agent/internal/hardware"
	"syslink-agent/internal/model"
)

const defaultTopCount = 10

func (a *api) listProcesses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	defaults := model.DefaultProcessQueryOptions()
	opts := model.ProcessQueryOptions{
		SortBy:                 model.ParseProcessSortField(q.Get("sortBy")),
		SortDescending:         queryBool(r, "sortDesc", defaults.SortDescending),
		Top:                    queryInt(r, "top", defaults.Top),
		SearchTerm:             q.Get("search"),
		IncludeSystemProcesses: queryBool(r, "includeSystem", false),
	}
	resp, err := a.Processes.List(r.Context(), opts)
	if err != nil {
		a.logger.Error("list processes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get processes")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) getProcess(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "pid")
	pid, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Process %s not found", raw))
		return
	}
	p, err := a.Processes.Get(r.Context(), int32(pid))
	if errors.Is(err, hardware.ErrProcessNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Process %d not found", pid))
		return
	}
	if err != nil {
		a.logger.Error("get process failed", "pid", pid, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get process")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) topByCPU(w http.ResponseWriter, r *http.Request) {
	procs, err := a.Processes.TopByCPU(r.Context(), queryInt(r, "count", defaultTopCount))
	if err != nil {
		a.logger.Error("top cpu processes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get processes")
		return
	}
	writeJSON(w, http.StatusOK, procs)
}

func (a *api) topByMemory(w http.ResponseWriter, r *http.Request) {
	procs, err := a.Processes.TopByMemory(r.Context(), queryInt(r, "count", defaultTopCount))
	if err != nil {
		a.logger.Error("top memory processes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get processes")
		return
	}
	writeJSON(w, http.StatusOK, procs)
}
