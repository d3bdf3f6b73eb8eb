package templates

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoTranslation      = errors.New("no translation found")
	ErrRender             = errors.New("template render failed")
	ErrVersionNotFound    = errors.New("template version not found")
	ErrTestNotFound       = errors.New("ab test not found")
	ErrTranslationMissing = errors.New("translation not found")
	ErrInvalidVersion     = errors.New("invalid template version")
	ErrInvalidTest        = errors.New("invalid ab test")
	ErrTrafficExceeded    = errors.New("traffic percentages exceed 100")
	ErrTestOverlap        = errors.New("another ab test is active for this template")
	ErrReadOnlyStore      = errors.New("translation store is read-only")
)

// NoTranslationError is returned after the whole locale chain was tried.
type NoTranslationError struct {
	EventKey     string
	TemplateType string
	Languages    []string
}

func (e *NoTranslationError) Error() string {
	return fmt.Sprintf("no translation for %s/%s in [%s]", e.EventKey, e.TemplateType, strings.Join(e.Languages, ", "))
}

func (e *NoTranslationError) Is(target error) bool {
	return target == ErrNoTranslation
}

// RenderError wraps an interpolation failure in one content field.
type RenderError struct {
	EventKey string
	Field    string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s %s: %v", e.EventKey, e.Field, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool {
	return target == ErrRender
}
