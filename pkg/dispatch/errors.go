package dispatch

import "errors"

var (
	ErrInvalidRecipient  = errors.New("recipient id is required")
	ErrAllChannelsFailed = errors.New("every target channel failed")
	ErrRetryQueueFailed  = errors.New("retry queue push failed")
	ErrInvalidEngagement = errors.New("invalid engagement")
)
