package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound          = errors.New("not found")
	ErrMissingUserID     = errors.New("user_id is required")
	ErrInvalidLane       = errors.New("invalid lane: must be priority or regular")
	ErrMalformedRecord   = errors.New("malformed notification record")
	ErrBatchTooLarge     = errors.New("batch exceeds maximum of 1000 notifications")
	ErrBatchEmpty        = errors.New("batch must contain at least one notification")
	ErrEmissionExhausted = errors.New("outbound emission retries exhausted")
)
