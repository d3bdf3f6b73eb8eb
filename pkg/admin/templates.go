package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

const maxTemplateBody = 1 << 20

// Templates manages template versions and A/B tests.
type Templates interface {
	CreateVersion(ctx context.Context, n templates.NewVersion) (templates.TemplateVersion, error)
	SetDefault(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	Snapshot(ctx context.Context, id string) (templates.TemplateVersion, error)
	Versions(ctx context.Context, ref templates.TemplateRef) ([]templates.TemplateVersion, error)
	StartTest(ctx context.Context, t templates.ABTest) (templates.ABTest, error)
	EvaluateTest(ctx context.Context, id string) (templates.ABTest, error)
	ActiveTests(ctx context.Context, ref templates.TemplateRef) ([]templates.ABTest, error)
}

// WithTemplates enables the /templates routes.
func WithTemplates(t Templates) Option {
	return func(h *Handler) { h.templates = t }
}

type versionRequest struct {
	EventKey          string                  `json:"event_key"`
	Channel           string                  `json:"channel"`
	TemplateType      string                  `json:"template_type"`
	Version           string                  `json:"version"`
	Active            bool                    `json:"active"`
	TrafficPercentage int                     `json:"traffic_percentage"`
	StartDate         *time.Time              `json:"start_date,omitempty"`
	EndDate           *time.Time              `json:"end_date,omitempty"`
	Translations      []templates.Translation `json:"translations"`
}

func (h *Handler) templateRoutes(r chi.Router) {
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.templates == nil {
				fail(w, http.StatusNotFound, "templates_disabled", "template versioning not configured")
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/{event}/{channel}/{type}/versions", h.listVersions)
	r.Get("/{event}/{channel}/{type}/tests", h.listTests)
	r.Post("/versions", h.createVersion)
	r.Get("/versions/{id}", h.getVersion)
	r.Post("/versions/{id}/default", h.setDefault)
	r.Post("/versions/{id}/activate", h.setActive(true))
	r.Post("/versions/{id}/deactivate", h.setActive(false))
	r.Post("/tests", h.startTest)
	r.Post("/tests/{id}/evaluate", h.evaluateTest)
}

func (h *Handler) templateRef(r *http.Request) (templates.TemplateRef, error) {
	c, err := notifications.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		return templates.TemplateRef{}, fmt.Errorf("%w: %w", errBadParam, err)
	}
	return templates.TemplateRef{
		EventKey:     h.holder.Normalize(chi.URLParam(r, "event")),
		Channel:      c,
		TemplateType: chi.URLParam(r, "type"),
	}, nil
}

func (h *Handler) listVersions(w http.ResponseWriter, r *http.Request) {
	ref, err := h.templateRef(r)
	if err != nil {
		writeError(w, err)
		return
	}
	versions, err := h.templates.Versions(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, versions, map[string]any{"total": len(versions)})
}

func (h *Handler) listTests(w http.ResponseWriter, r *http.Request) {
	ref, err := h.templateRef(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tests, err := h.templates.ActiveTests(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, tests, map[string]any{"total": len(tests)})
}

func (h *Handler) createVersion(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := notifications.ParseChannel(req.Channel)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadBody, err))
		return
	}
	v, err := h.templates.CreateVersion(r.Context(), templates.NewVersion{
		EventKey:          h.holder.Normalize(req.EventKey),
		Channel:           c,
		TemplateType:      req.TemplateType,
		Version:           req.Version,
		Active:            req.Active,
		TrafficPercentage: req.TrafficPercentage,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		Translations:      req.Translations,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, httpserver.Response{Data: v})
}

func (h *Handler) getVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.templates.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, v, nil)
}

func (h *Handler) setDefault(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.templates.SetDefault(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.getVersion(w, r)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.templates.SetActive(r.Context(), chi.URLParam(r, "id"), active); err != nil {
			writeError(w, err)
			return
		}
		h.getVersion(w, r)
	}
}

func (h *Handler) startTest(w http.ResponseWriter, r *http.Request) {
	var t templates.ABTest
	if err := decodeBody(r, &t); err != nil {
		writeError(w, err)
		return
	}
	started, err := h.templates.StartTest(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, httpserver.Response{Data: started})
}

func (h *Handler) evaluateTest(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.EvaluateTest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, t, nil)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxTemplateBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadBody, err)
	}
	return nil
}
