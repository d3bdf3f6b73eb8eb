package analytics

import "errors"

var (
	ErrInvalidMetric     = errors.New("invalid metric")
	ErrInvalidEngagement = errors.New("invalid engagement kind")
	ErrInvalidWindow     = errors.New("window must be at least one day")
	ErrStoreFailed       = errors.New("analytics store operation failed")
)
