// Package errors defines the error taxonomy of the channel mirror system.
//
// The upstream rate-limit condition is represented structurally as
// *RateLimitedError rather than as control-flow by exception: only the rate
// governor reacts to it, every other layer passes it through untouched.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryTransport represents transient platform/network failures
	CategoryTransport ErrorCategory = "transport"
	// CategoryRateLimit represents the upstream rate-limit condition
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryEntity represents channel-reference resolution failures
	CategoryEntity ErrorCategory = "entity"
	// CategoryStorage represents cursor-store and cache failures
	CategoryStorage ErrorCategory = "storage"
	// CategoryValidation represents invalid caller input
	CategoryValidation ErrorCategory = "validation"
	// CategorySystem represents unexpected internal errors
	CategorySystem ErrorCategory = "system"
)

// CategorizedError carries a category, a stable code, and an optional cause.
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// RateLimitedError is the distinguished upstream signal requiring a mandatory
// wait before retrying the same operation. It is not a fault: the rate
// governor suspends for RetryAfter and re-invokes the operation.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by platform, retry after %s", e.RetryAfter)
}

// NewRateLimited creates the rate-limit condition with the mandated wait.
func NewRateLimited(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

// IsRateLimited reports whether err carries the rate-limit condition and, if
// so, the mandated wait duration.
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// NewTransportError creates a transient transport failure.
func NewTransportError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransport,
		Code:     "TRANSPORT_FAILURE",
		Message:  fmt.Sprintf("transport failure during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewEntityResolutionError creates an error for an invalid or unreachable
// channel reference. Surfaced to the caller; never retried.
func NewEntityResolutionError(ref string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryEntity,
		Code:     "ENTITY_RESOLUTION_FAILED",
		Message:  fmt.Sprintf("cannot resolve channel reference %q", ref),
		Cause:    cause,
		Details: map[string]interface{}{
			"reference": ref,
		},
	}
}

// NewStorageError creates a storage-layer error.
func NewStorageError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryStorage,
		Code:     "STORAGE_ERROR",
		Message:  fmt.Sprintf("storage error during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewValidationError creates an invalid-input error.
func NewValidationError(param, reason string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryValidation,
		Code:     "INVALID_PARAMETER",
		Message:  fmt.Sprintf("invalid parameter %q: %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewInternalError creates an unexpected internal error.
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategorySystem,
		Code:     "INTERNAL_ERROR",
		Message:  message,
		Cause:    cause,
	}
}

// Categorize wraps an arbitrary error into a CategorizedError. Rate-limit
// conditions are never re-categorized.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}
	return NewInternalError("unexpected error", err)
}

// IsRetryable reports whether an error should consume the bounded retry
// budget. Rate-limit conditions are excluded: they are handled by the rate
// governor and never count against the budget.
func IsRetryable(err error) bool {
	if _, ok := IsRateLimited(err); ok {
		return false
	}
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	switch catErr.Category {
	case CategoryTransport, CategoryStorage, CategorySystem:
		return true
	default:
		return false
	}
}

// IsEntityError reports whether an error is a channel-resolution failure.
func IsEntityError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryEntity
}
