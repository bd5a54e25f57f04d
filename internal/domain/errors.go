package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict marks a lost optimistic write; the transaction runner retries on it.
	ErrConflict       = errors.New("write conflict")
	ErrInfrastructure = errors.New("infrastructure failure")
)

// IsBusinessError reports whether err is a precondition failure that must be
// surfaced to the caller as-is and never retried.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidInput)
}
