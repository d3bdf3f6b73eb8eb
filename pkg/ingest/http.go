package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/dispatch"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/i18n"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/registry"
)

const maxEventBody = 1 << 20

// Subscriber is implemented by *notifications.Realtime.
type Subscriber interface {
	Subscribe(ctx context.Context, recipientID string) *notifications.Subscription
}

// API serves the inbound HTTP routes. Authentication is left to the
// gateway in front of it.
type API struct {
	emitter   Emitter
	tracker   Tracker
	realtime  Subscriber
	heartbeat time.Duration
	limit     func(http.Handler) http.Handler
	logger    *slog.Logger
}

type APIOption func(*API)

func WithTracker(t Tracker) APIOption {
	return func(a *API) { a.tracker = t }
}

// WithRealtime enables GET /stream/{recipient}.
func WithRealtime(s Subscriber) APIOption {
	return func(a *API) { a.realtime = s }
}

// WithRateLimit wraps the write routes, POST /events and POST /engagement.
func WithRateLimit(mw func(http.Handler) http.Handler) APIOption {
	return func(a *API) { a.limit = mw }
}

func WithHeartbeat(d time.Duration) APIOption {
	return func(a *API) {
		if d > 0 {
			a.heartbeat = d
		}
	}
}

func WithAPILogger(l *slog.Logger) APIOption {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAPI(em Emitter, opts ...APIOption) *API {
	a := &API{emitter: em, heartbeat: 25 * time.Second, logger: logger.Discard()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Routes returns POST /events, POST /engagement and GET /stream/{recipient}.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if a.limit != nil {
			r.Use(a.limit)
		}
		r.Post("/events", a.emit)
		r.Post("/engagement", a.engagement)
	})
	r.Get("/stream/{recipient}", a.stream)
	return r
}

func (a *API) emit(w http.ResponseWriter, r *http.Request) {
	var ev Event
	if err := decode(r.Body, &ev); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if ev.Locale == "" {
		if langs := i18n.ParseAcceptLanguage(r.Header.Get("Accept-Language")); len(langs) > 0 {
			ev.Locale = langs[0]
		}
	}
	res, err := Process(r.Context(), a.emitter, ev)
	switch {
	case err == nil:
		httpserver.WriteJSON(w, http.StatusOK, httpserver.Response{Data: res})
	case errors.Is(err, digest.ErrSchedulerClosed):
		w.Header().Set("Retry-After", "5")
		httpserver.WriteError(w, http.StatusServiceUnavailable, "shutting_down", "service is shutting down")
	case errors.Is(err, digest.ErrMissingGroupBy):
		httpserver.WriteError(w, http.StatusUnprocessableEntity, "missing_group_by", err.Error())
	case errors.Is(err, dispatch.ErrAllChannelsFailed):
		httpserver.WriteJSON(w, http.StatusBadGateway, httpserver.Response{
			Data:  res,
			Error: &httpserver.ErrorDetail{Code: "delivery_failed", Message: dispatch.ErrAllChannelsFailed.Error()},
		})
	case errors.Is(err, ErrInvalidEvent), errors.Is(err, dispatch.ErrInvalidRecipient):
		httpserver.WriteError(w, http.StatusBadRequest, "invalid_event", err.Error())
	case errors.Is(err, registry.ErrRegistryNotLoaded):
		httpserver.WriteError(w, http.StatusServiceUnavailable, "registry_not_loaded", err.Error())
	default:
		a.logger.ErrorContext(r.Context(), "emit failed", logger.EventKey(ev.EventKey), logger.Error(err))
		httpserver.WriteError(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError))
	}
}

func (a *API) engagement(w http.ResponseWriter, r *http.Request) {
	if a.tracker == nil {
		httpserver.WriteError(w, http.StatusNotFound, "engagement_disabled", "engagement tracking not configured")
		return
	}
	var ev EngagementEvent
	if err := decode(r.Body, &ev); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	err := a.tracker.TrackEngagement(r.Context(), ev.engagement())
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, dispatch.ErrInvalidEngagement):
		httpserver.WriteError(w, http.StatusBadRequest, "invalid_engagement", err.Error())
	default:
		a.logger.ErrorContext(r.Context(), "engagement tracking failed", logger.EventKey(ev.EventKey), logger.Error(err))
		httpserver.WriteError(w, http.StatusInternalServerError, "internal_error", http.StatusText(http.StatusInternalServerError))
	}
}

// stream relays realtime notifications as Server-Sent Events until the
// client disconnects.
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	if a.realtime == nil {
		httpserver.WriteError(w, http.StatusNotFound, "stream_disabled", "realtime not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpserver.WriteError(w, http.StatusInternalServerError, "stream_unsupported", "response writer cannot flush")
		return
	}

	ctx := r.Context()
	sub := a.realtime.Subscribe(ctx, chi.URLParam(r, "recipient"))
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(a.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case n, open := <-sub.C():
			if !open {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				a.logger.WarnContext(ctx, "skipping unencodable notification", logger.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, data); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func decode(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, maxEventBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrDecode, err)
	}
	return nil
}
