package gateway

import "errors"

var (
	// ErrSourceNotFound is returned when the gateway has no such source.
	ErrSourceNotFound = errors.New("gateway: source not found")

	// ErrUnavailable is returned on network failures or gateway 5xx
	// responses. Retryable by the caller.
	ErrUnavailable = errors.New("gateway: unavailable")

	// ErrInvalidSignature is returned when notification signature
	// verification fails.
	ErrInvalidSignature = errors.New("gateway: invalid notification signature")

	// ErrInvalidAmount is returned when the gateway rejects the amount.
	ErrInvalidAmount = errors.New("gateway: invalid amount")
)
