// Package common defines shared constants and sentinel errors used across
// the engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors (bad input shape, surfaced verbatim).
	ErrValidation     = errors.New("validation error")
	ErrDuplicateEmail = errors.New("email already registered")

	// MFA errors. Expired, consumed, and plain wrong codes are
	// indistinguishable to callers.
	ErrCodeInvalid = errors.New("code invalid or expired")
	ErrMailNotSent = errors.New("could not send email")

	// Auth errors (invalid or malformed session token).
	ErrInvalidToken = errors.New("invalid token")
)
