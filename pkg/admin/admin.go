package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/registry"
)

var (
	errBadParam = errors.New("invalid query parameter")
	errBadBody  = errors.New("invalid request body")
)

// Digests is the part of the digest scheduler the admin surface drives.
type Digests interface {
	Open() []digest.Batch
	Get(batchID string) (digest.Batch, error)
	Flush(ctx context.Context, batchID string) error
	FlushDue(ctx context.Context) int
	FlushAll(ctx context.Context) int
}

// Stats answers analytics queries.
type Stats interface {
	GetStats(ctx context.Context, q analytics.StatsQuery) (analytics.StatsSnapshot, error)
	TopTemplates(ctx context.Context, limit, windowDays int, metric analytics.Metric) ([]analytics.TemplateRank, error)
}

// Handler serves the admin routes. Digest, stats and template routes
// answer 404 when their backend was not configured.
type Handler struct {
	holder       *registry.Holder
	digests      Digests
	stats        Stats
	templates    Templates
	source       registry.Source
	checks       []httpserver.Check
	checkTimeout time.Duration
	logger       *slog.Logger
}

type Option func(*Handler)

func WithDigests(d Digests) Option {
	return func(h *Handler) { h.digests = d }
}

func WithStats(s Stats) Option {
	return func(h *Handler) { h.stats = s }
}

// WithSource enables POST /config/reload and makes GET /config/validate
// check the source's current content instead of the loaded registry.
func WithSource(src registry.Source) Option {
	return func(h *Handler) { h.source = src }
}

// WithReadinessChecks adds dependencies probed by /readyz.
func WithReadinessChecks(checks ...httpserver.Check) Option {
	return func(h *Handler) { h.checks = append(h.checks, checks...) }
}

func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.checkTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func New(holder *registry.Holder, opts ...Option) *Handler {
	h := &Handler{
		holder:       holder,
		checkTimeout: 2 * time.Second,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the admin router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(h.logger, h.checkTimeout, h.readinessChecks()...))

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.listEvents)
		r.Get("/{key}", h.getEvent)
	})
	r.Route("/config", func(r chi.Router) {
		r.Get("/", h.getConfig)
		r.Get("/validate", h.validateCurrent)
		r.Post("/validate", h.validateBody)
		r.Post("/reload", h.reload)
	})
	r.Route("/digests", func(r chi.Router) {
		r.Get("/", h.listDigests)
		r.Post("/flush", h.flushDue)
		r.Get("/{id}", h.getDigest)
		r.Post("/{id}/flush", h.flushDigest)
	})
	r.Route("/stats", func(r chi.Router) {
		r.Get("/top", h.topTemplates)
		r.Get("/{event}", h.eventStats)
	})
	r.Route("/templates", h.templateRoutes)
	return r
}

func (h *Handler) readinessChecks() []httpserver.Check {
	registryLoaded := httpserver.Check{
		Name: "registry",
		Fn: func(context.Context) error {
			if h.holder.Current() == nil {
				return registry.ErrRegistryNotLoaded
			}
			return nil
		},
	}
	return append([]httpserver.Check{registryLoaded}, h.checks...)
}

func (h *Handler) registry() (*registry.Registry, error) {
	if r := h.holder.Current(); r != nil {
		return r, nil
	}
	return nil, registry.ErrRegistryNotLoaded
}
