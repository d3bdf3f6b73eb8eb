package i18n

import (
	"errors"
	"fmt"
)

var (
	ErrMissingValue      = errors.New("missing interpolation value")
	ErrFailedToParseJSON = errors.New("failed to parse JSON content")
	ErrFailedToParseYAML = errors.New("failed to parse YAML content")
	ErrUnsupportedFormat = errors.New("unsupported translation file format")
	ErrInvalidEntry      = errors.New("invalid translation entry")
)

// MissingValueError reports a placeholder with no value in the payload.
type MissingValueError struct {
	Path string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("missing interpolation value for %%{%s}", e.Path)
}

func (e *MissingValueError) Is(target error) bool {
	return target == ErrMissingValue
}
