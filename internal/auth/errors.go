package auth

import "errors"

var (
	// ErrMissingUserID means the gateway did not set X-User-ID.
	ErrMissingUserID = errors.New("X-User-ID header required")

	// ErrInvalidUserID means X-User-ID is not 1-128 characters of [A-Za-z0-9_.:@-].
	ErrInvalidUserID = errors.New("X-User-ID header malformed")
)
