package opensearch

import "errors"

var (
	ErrConnectionFailed  = errors.New("opensearch connection failed")
	ErrHealthcheckFailed = errors.New("opensearch healthcheck failed")

	// ErrRequestFailed is returned when OpenSearch answers with an error status.
	ErrRequestFailed = errors.New("opensearch request failed")
)
