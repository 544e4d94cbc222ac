package services

import (
	"errors"
	"fmt"

	"gatekeep/internal/validation"
)

var (
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingFields      = errors.New("username and password are required")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrAccountNotFound    = errors.New("account not found")
	// ErrStoreUnavailable marks transient infrastructure failures. It is never retried here.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Field   string
	Reason  validation.Reason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidationError(r validation.Result) *ValidationError {
	return &ValidationError{Field: r.Field, Reason: r.Reason, Message: r.Message}
}

// storeError wraps a repository failure so callers can match ErrStoreUnavailable
// without losing the cause in logs.
func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
