package models

import "errors"

// Error kinds shared by every component. Callers wrap them with context and
// the HTTP layer maps them to status codes with errors.Is.
var (
	// ErrUnauthenticated indicates a missing or invalid webhook signature or session.
	ErrUnauthenticated = errors.New("authentication failed")

	// ErrValidation indicates a malformed or unacceptable request.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown fingerprint.
	ErrNotFound = errors.New("not found")

	// ErrStore indicates the backing store was unreachable or returned an error.
	ErrStore = errors.New("store failure")

	// ErrQuotaExceeded indicates a publish was denied by a usage limit.
	ErrQuotaExceeded = errors.New("quota exceeded")
)
