package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource already exists")
	ErrBadRequest = errors.New("bad request")

	// Infrastructure errors: the counter/record store is unreachable or timed out.
	// Callers decide fail-open vs fail-closed; the core never converts these into
	// an allow or deny on its own.
	ErrStoreUnavailable = errors.New("counter store unavailable")

	// ErrDeliveryFailed signals that a challenge code could not be dispatched.
	// The stored challenge remains valid.
	ErrDeliveryFailed = errors.New("challenge delivery failed")

	// ErrUnsupportedDelivery signals a delivery method the configured notifier
	// cannot handle.
	ErrUnsupportedDelivery = errors.New("unsupported delivery method")
)
