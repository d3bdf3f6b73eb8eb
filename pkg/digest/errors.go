package digest

import (
	"errors"
	"fmt"
)

var (
	ErrNotDigestable   = errors.New("event is not digestable")
	ErrMissingGroupBy  = errors.New("digest group_by path not found in payload")
	ErrAlreadyFlushed  = errors.New("digest batch already flushed")
	ErrBatchNotFound   = errors.New("digest batch not found")
	ErrNoFlushHandler  = errors.New("digest flush handler not configured")
	ErrSchedulerClosed = errors.New("digest scheduler closed")
)

// MissingGroupByPathError is returned when the payload lacks the group_by
// path or holds a non-scalar value there.
type MissingGroupByPathError struct {
	EventKey string
	Path     string
	Reason   string
}

func (e *MissingGroupByPathError) Error() string {
	return fmt.Sprintf("event %q: group_by path %q %s", e.EventKey, e.Path, e.Reason)
}

func (e *MissingGroupByPathError) Is(target error) bool {
	return target == ErrMissingGroupBy
}
