package admin

import (
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/policy"
	"github.com/dmitrymomot/notifykit/pkg/registry"
)

const maxConfigBody = 4 << 20

// EventView is an event definition with the channels it reaches for a
// recipient without preferences under global defaults.
type EventView struct {
	registry.EventDefinition
	Channels notifications.ChannelSet `json:"channels"`
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registry()
	if err != nil {
		writeError(w, err)
		return
	}
	p := policy.New(reg)
	defs := reg.Events()
	out := make([]EventView, len(defs))
	for i, def := range defs {
		out[i] = EventView{EventDefinition: def, Channels: p.ResolveTargets(def, nil, nil)}
	}
	ok(w, out, map[string]any{
		"count":   len(out),
		"aliases": reg.Aliases(),
	})
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registry()
	if err != nil {
		writeError(w, err)
		return
	}
	def, err := reg.MustResolve(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, EventView{EventDefinition: def, Channels: policy.New(reg).ResolveTargets(def, nil, nil)}, nil)
}

// getConfig returns the loaded document as is, without the envelope.
func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registry()
	if err != nil {
		writeError(w, err)
		return
	}
	raw, err := reg.RawJSON()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(raw)
}

func (h *Handler) validateCurrent(w http.ResponseWriter, r *http.Request) {
	if h.source != nil {
		data, format, err := h.source.Fetch(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		h.writeDefects(w, registry.Validate(data, format), h.source.String())
		return
	}
	reg, err := h.registry()
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeDefects(w, reg.ValidateAll(), "loaded")
}

func (h *Handler) validateBody(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBody))
	if err != nil {
		fail(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	h.writeDefects(w, registry.Validate(data, bodyFormat(r)), "request")
}

func (h *Handler) writeDefects(w http.ResponseWriter, defects []registry.Defect, source string) {
	if len(defects) > 0 {
		httpserver.WriteJSON(w, http.StatusUnprocessableEntity, httpserver.Response{
			Data:  defects,
			Meta:  map[string]any{"valid": false, "defects": len(defects), "source": source},
			Error: defectsError(defects),
		})
		return
	}
	ok(w, []registry.Defect{}, map[string]any{"valid": true, "defects": 0, "source": source})
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		fail(w, http.StatusNotFound, "reload_disabled", "no configuration source configured")
		return
	}
	reg, err := h.holder.Reload(r.Context(), h.source)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "configuration reload failed", logger.Error(err))
		writeError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "configuration reloaded")
	ok(w, map[string]any{"events": len(reg.Events())}, map[string]any{"source": h.source.String()})
}

func bodyFormat(r *http.Request) registry.Format {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return registry.FormatYAML
	}
	return registry.FormatJSON
}
