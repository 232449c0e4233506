// internal/util/errors.go
package util

import "errors"

// Common application-specific errors.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input provided")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSlotInactive        = errors.New("slot is no longer active")
	ErrOwnerNotFound       = errors.New("owner not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrDuplicateEntry      = errors.New("duplicate entry")
	// ErrConcurrencyConflict means a per-owner serialization lock could not
	// be acquired in time. Callers may retry with backoff.
	ErrConcurrencyConflict = errors.New("concurrent operation in progress")
)

// IsError reports whether err wraps target. Thin wrapper around errors.Is
// so call sites read uniformly across handlers and services.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}
