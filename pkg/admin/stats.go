package admin

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
)

const (
	defaultWindowDays = 7
	defaultTopLimit   = 10
	maxTopLimit       = 100
)

func (h *Handler) eventStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		fail(w, http.StatusNotFound, "stats_disabled", "analytics not configured")
		return
	}
	window, err := intParam(r, "window_days", defaultWindowDays)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.stats.GetStats(r.Context(), analytics.StatsQuery{
		EventKey:   h.holder.Normalize(chi.URLParam(r, "event")),
		WindowDays: window,
		TenantID:   r.URL.Query().Get("tenant"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, snap, nil)
}

func (h *Handler) topTemplates(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		fail(w, http.StatusNotFound, "stats_disabled", "analytics not configured")
		return
	}
	limit, err := intParam(r, "limit", defaultTopLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit < 1 || limit > maxTopLimit {
		writeError(w, fmt.Errorf("%w: limit must be between 1 and %d", errBadParam, maxTopLimit))
		return
	}
	window, err := intParam(r, "window_days", defaultWindowDays)
	if err != nil {
		writeError(w, err)
		return
	}
	metric := analytics.MetricRenders
	if v := r.URL.Query().Get("metric"); v != "" {
		if metric, err = analytics.ParseMetric(v); err != nil {
			writeError(w, err)
			return
		}
	}
	ranks, err := h.stats.TopTemplates(r.Context(), limit, window, metric)
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, ranks, map[string]any{"metric": metric, "window_days": window, "count": len(ranks)})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadParam, name)
	}
	return n, nil
}
