package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"syslink-agent/internal/model"
)

func (a *api) metricTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.MetricTypes)
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "metric")
	metric, ok := model.NormalizeMetricType(raw)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "Invalid metric type: " + raw,
			"validTypes": model.MetricTypes,
		})
		return
	}

	q := r.URL.Query()
	period := q.Get("period")
	if period == "" {
		period = "1h"
	}
	maxPoints := queryInt(r, "maxPoints", model.DefaultHistoryMaxPoints)
	if maxPoints <= 0 {
		maxPoints = model.DefaultHistoryMaxPoints
	}
	opts := model.HistoryQueryOptions{
		MetricType:  metric,
		Period:      ParsePeriod(period),
		MaxPoints:   maxPoints,
		Aggregation: model.ParseAggregation(q.Get("aggregation")),
	}
	resp, err := a.History.GetHistory(r.Context(), opts)
	if err != nil {
		a.logger.Error("get history failed", "metric", metric, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get history")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ParsePeriod reads "<n>m", "<n>h" or "<n>d". A malformed number counts as 1
// and an unknown suffix yields one hour.
func ParsePeriod(raw string) time.Duration {
	p := strings.ToLower(strings.TrimSpace(raw))
	n, err := strconv.Atoi(strings.TrimRight(p, "mhd"))
	if err != nil {
		n = 1
	}
	switch {
	case strings.HasSuffix(p, "m"):
		return time.Duration(n) * time.Minute
	case strings.HasSuffix(p, "h"):
		return time.Duration(n) * time.Hour
	case strings.HasSuffix(p, "d"):
		return time.Duration(n) * 24 * time.Hour
	default:
		return time.Hour
	}
}
