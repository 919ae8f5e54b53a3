// Package common defines shared constants and sentinel errors used across the
// Gold Flix backend. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository/store-level errors.
	ErrNotFound = errors.New("not found")

	// Validation errors (empty id, unknown category, non-positive price, ...).
	ErrInvalidInput = errors.New("invalid input")

	// Optimistic-concurrency loss on a conditioned write. Never retried
	// automatically; the caller decides whether to resubmit.
	ErrConflict = errors.New("conflict")

	// Purchase-specific outcomes.
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyOwned      = errors.New("already owned")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")

	// Generic internal flow control.
	ErrInternal = errors.New("internal error")
)
