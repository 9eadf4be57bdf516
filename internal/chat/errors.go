// ABOUTME: Error taxonomy for remote conversation operations
// ABOUTME: Sentinels are wrapped with context and matched with errors.Is

package chat

import (
	"context"
	"errors"
)

// Remote operation errors
var (
	ErrNetwork    = errors.New("network error")
	ErrAuth       = errors.New("authentication error")
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
)

// IsAuth reports whether err invalidates the viewer session.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsTransient reports whether err is worth retrying on the next tick.
// Deadline expiry counts as a network failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, context.DeadlineExceeded)
}
