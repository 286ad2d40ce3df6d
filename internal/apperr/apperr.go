// Package apperr defines the error taxonomy shared by the pricing engine.
//
// Every error the engine returns wraps exactly one of the sentinel kinds
// below, so callers classify failures with errors.Is instead of matching
// on message text.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing request fields. Always
	// caller-fixable, never retried.
	ErrValidation = errors.New("validation error")

	// ErrAuthentication marks missing or invalid credentials on a
	// privileged action.
	ErrAuthentication = errors.New("authentication error")

	// ErrComputation marks an invariant violation detected while pricing,
	// such as a non-positive base price or steepness.
	ErrComputation = errors.New("computation error")

	// ErrStorage marks a cache or configuration backend failure.
	ErrStorage = errors.New("storage error")
)

// Validation returns a formatted error wrapping ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Authentication returns a formatted error wrapping ErrAuthentication.
func Authentication(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuthentication, fmt.Sprintf(format, args...))
}

// Computation returns a formatted error wrapping ErrComputation.
func Computation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrComputation, fmt.Sprintf(format, args...))
}

// Storage wraps a backend error as ErrStorage, keeping the cause in the chain.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrAuthentication):
		return "AUTHENTICATION_ERROR"
	case errors.Is(err, ErrComputation):
		return "COMPUTATION_ERROR"
	case errors.Is(err, ErrStorage):
		return "STORAGE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
