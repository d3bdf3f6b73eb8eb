package admin

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// BatchView is a digest batch as listed by the admin API. Members are only
// included for single-batch lookups.
type BatchView struct {
	ID       string                       `json:"id"`
	Key      digest.Key                   `json:"key"`
	State    digest.State                 `json:"state"`
	OpenedAt time.Time                    `json:"opened_at"`
	Deadline time.Time                    `json:"deadline"`
	Size     int                          `json:"size"`
	Members  []notifications.Notification `json:"members,omitempty"`
}

func newBatchView(b digest.Batch, members bool) BatchView {
	v := BatchView{
		ID:       b.ID,
		Key:      b.Key,
		State:    b.State,
		OpenedAt: b.OpenedAt,
		Deadline: b.Deadline,
		Size:     b.Len(),
	}
	if members {
		v.Members = b.Members
	}
	return v
}

func (h *Handler) listDigests(w http.ResponseWriter, r *http.Request) {
	if h.digests == nil {
		fail(w, http.StatusNotFound, "digests_disabled", "digest scheduler not configured")
		return
	}
	event := r.URL.Query().Get("event")
	if event != "" {
		event = h.holder.Normalize(event)
	}
	tenantID := r.URL.Query().Get("tenant")

	batches := slices.DeleteFunc(h.digests.Open(), func(b digest.Batch) bool {
		return (event != "" && b.Key.EventKey != event) || (tenantID != "" && b.Key.TenantID != tenantID)
	})
	out := make([]BatchView, len(batches))
	for i, b := range batches {
		out[i] = newBatchView(b, false)
	}
	ok(w, out, map[string]any{"count": len(out)})
}

func (h *Handler) getDigest(w http.ResponseWriter, r *http.Request) {
	if h.digests == nil {
		fail(w, http.StatusNotFound, "digests_disabled", "digest scheduler not configured")
		return
	}
	b, err := h.digests.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, newBatchView(b, true), nil)
}

// flushDigest claims and delivers one batch. A claimed batch counts as
// flushed even when delivery failed; the failure is reported in meta.
func (h *Handler) flushDigest(w http.ResponseWriter, r *http.Request) {
	if h.digests == nil {
		fail(w, http.StatusNotFound, "digests_disabled", "digest scheduler not configured")
		return
	}
	id := chi.URLParam(r, "id")
	b, err := h.digests.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	err = h.digests.Flush(r.Context(), id)
	switch {
	case err == nil:
		ok(w, map[string]any{"id": id, "flushed": b.Len()}, nil)
	case errors.Is(err, digest.ErrBatchNotFound), errors.Is(err, digest.ErrAlreadyFlushed):
		writeError(w, err)
	default:
		h.logger.WarnContext(r.Context(), "manual digest flush delivered with errors", logger.BatchID(id), logger.Error(err))
		ok(w, map[string]any{"id": id, "flushed": b.Len()}, map[string]any{"delivery_error": err.Error()})
	}
}

// flushDue flushes every batch past its deadline, or every open batch when
// all=true.
func (h *Handler) flushDue(w http.ResponseWriter, r *http.Request) {
	if h.digests == nil {
		fail(w, http.StatusNotFound, "digests_disabled", "digest scheduler not configured")
		return
	}
	var n int
	if r.URL.Query().Get("all") == "true" {
		n = h.digests.FlushAll(r.Context())
	} else {
		n = h.digests.FlushDue(r.Context())
	}
	ok(w, map[string]any{"batches": n}, nil)
}
