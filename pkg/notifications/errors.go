package notifications

import "errors"

var (
	// ErrNotificationNotFound is returned when a notification is not found.
	ErrNotificationNotFound = errors.New("notification not found")

	ErrUnknownChannel  = errors.New("unknown channel")
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrNoSender is returned when no transport is registered for a channel.
	ErrNoSender = errors.New("no sender registered for channel")

	// ErrNoAddress is returned when the recipient has no address for a channel.
	ErrNoAddress = errors.New("recipient has no address for channel")

	ErrDeliveryFailed = errors.New("delivery failed")
)
