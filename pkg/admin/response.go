package admin

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/notifykit/pkg/analytics"
	"github.com/dmitrymomot/notifykit/pkg/digest"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/registry"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

func ok(w http.ResponseWriter, data any, meta map[string]any) {
	httpserver.WriteJSON(w, http.StatusOK, httpserver.Response{Data: data, Meta: meta})
}

func fail(w http.ResponseWriter, status int, code, msg string) {
	httpserver.WriteError(w, status, code, msg)
}

// writeError maps known domain errors to a status and code. Anything else
// is a 500 with a generic message.
func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	msg := err.Error()

	var invalid *registry.InvalidConfigError
	switch {
	case errors.As(err, &invalid):
		httpserver.WriteJSON(w, http.StatusUnprocessableEntity, httpserver.Response{
			Error: defectsError(invalid.Defects),
			Meta:  map[string]any{"defects": len(invalid.Defects)},
		})
		return
	case errors.Is(err, registry.ErrUnknownEvent):
		status, code = http.StatusNotFound, "unknown_event"
	case errors.Is(err, registry.ErrRegistryNotLoaded):
		status, code = http.StatusServiceUnavailable, "registry_not_loaded"
	case errors.Is(err, registry.ErrSourceUnavailable):
		status, code = http.StatusBadGateway, "source_unavailable"
	case errors.Is(err, digest.ErrBatchNotFound):
		status, code = http.StatusNotFound, "batch_not_found"
	case errors.Is(err, digest.ErrAlreadyFlushed):
		status, code = http.StatusConflict, "batch_already_flushed"
	case errors.Is(err, analytics.ErrInvalidWindow),
		errors.Is(err, analytics.ErrInvalidMetric),
		errors.Is(err, errBadParam):
		status, code = http.StatusBadRequest, "invalid_parameter"
	case errors.Is(err, errBadBody):
		status, code = http.StatusBadRequest, "invalid_body"
	case errors.Is(err, templates.ErrVersionNotFound):
		status, code = http.StatusNotFound, "version_not_found"
	case errors.Is(err, templates.ErrTestNotFound):
		status, code = http.StatusNotFound, "test_not_found"
	case errors.Is(err, templates.ErrInvalidVersion),
		errors.Is(err, templates.ErrInvalidTest),
		errors.Is(err, templates.ErrTrafficExceeded):
		status, code = http.StatusUnprocessableEntity, "invalid_template"
	case errors.Is(err, templates.ErrTestOverlap):
		status, code = http.StatusConflict, "test_overlap"
	case errors.Is(err, templates.ErrReadOnlyStore):
		status, code = http.StatusConflict, "read_only_store"
	default:
		msg = http.StatusText(status)
	}
	fail(w, status, code, msg)
}

func defectsError(defects []registry.Defect) *httpserver.ErrorDetail {
	details := make(map[string][]string, len(defects))
	for _, d := range defects {
		field := d.Field
		if d.Key != "" {
			field = d.Key + "." + d.Field
		}
		details[field] = append(details[field], d.Message)
	}
	return &httpserver.ErrorDetail{
		Code:    "invalid_config",
		Message: registry.ErrInvalidConfig.Error(),
		Details: details,
	}
}
