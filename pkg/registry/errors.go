package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownEvent        = errors.New("unknown event")
	ErrInvalidConfig       = errors.New("invalid event configuration")
	ErrInvalidDigestConfig = errors.New("invalid digest configuration")
	ErrUnsupportedVersion  = errors.New("unsupported configuration version")
	ErrUnsupportedFormat   = errors.New("unsupported configuration format")
	ErrSourceUnavailable   = errors.New("configuration source unavailable")
	ErrRegistryNotLoaded   = errors.New("registry not loaded")
)

// UnknownEventError is returned by hard lookups of keys with no definition.
type UnknownEventError struct {
	Key string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event %q", e.Key)
}

func (e *UnknownEventError) Is(target error) bool {
	return target == ErrUnknownEvent
}

// Defect is one problem found while validating a configuration document.
type Defect struct {
	Key     string `json:"key"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (d Defect) String() string {
	if d.Key == "" {
		return fmt.Sprintf("%s: %s", d.Field, d.Message)
	}
	return fmt.Sprintf("%s.%s: %s", d.Key, d.Field, d.Message)
}

// InvalidConfigError carries every defect of a rejected document.
type InvalidConfigError struct {
	Defects []Defect
}

func (e *InvalidConfigError) Error() string {
	parts := make([]string, len(e.Defects))
	for i, d := range e.Defects {
		parts[i] = d.String()
	}
	return fmt.Sprintf("invalid event configuration (%d defects): %s", len(e.Defects), strings.Join(parts, "; "))
}

// Is matches ErrInvalidConfig, and ErrInvalidDigestConfig when any defect
// concerns a digest rule.
func (e *InvalidConfigError) Is(target error) bool {
	switch target {
	case ErrInvalidConfig:
		return true
	case ErrInvalidDigestConfig:
		for _, d := range e.Defects {
			if strings.HasPrefix(d.Field, "digest") {
				return true
			}
		}
	}
	return false
}
