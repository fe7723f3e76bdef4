package domain

import (
	"errors"
	"fmt"
	"time"
)

// Application error codes
const (
	EINVALID      = "invalid"             // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"        // Authentication required
	EFORBIDDEN    = "forbidden"           // Permission denied
	ENOTFOUND     = "not_found"           // Resource not found
	ECONFLICT     = "conflict"            // Resource conflict (e.g., duplicate)
	ERATELIMIT    = "rate_limit"          // Too many requests
	EINTERNAL     = "internal"            // Internal server error
	EQUOTA        = "quota_exceeded"      // Tier claim limit reached
	ECONTENTION   = "contention"          // Concurrent-update conflict, retryable
	ETOKENEXPIRED = "token_expired"       // Access token past its expiry
	EBADSIG       = "bad_signature"       // Access token signature mismatch
	ETOKENREUSED  = "token_reused"        // Single-use access token redeemed twice
	EUNAVAILABLE  = "content_unavailable" // Catalog points at a missing resource
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "quota.evaluate")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
// Internal errors are masked with a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != EINTERNAL {
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}

// QuotaExceeded creates the user-facing quota error. The message explains
// the limit and, for windowed tiers, when the quota next resets.
func QuotaExceeded(op string, used, limit int, nextReset time.Time) *Error {
	msg := fmt.Sprintf("You have used %d of %d claims for your plan.", used, limit)
	if !nextReset.IsZero() {
		msg = fmt.Sprintf("%s Your quota resets at %s.", msg, nextReset.UTC().Format(time.RFC3339))
	}
	return &Error{
		Code:    EQUOTA,
		Op:      op,
		Message: msg,
	}
}

// Contention creates the transient error surfaced when a claim could not be
// committed after bounded retries. Callers may retry the request.
func Contention(op string) *Error {
	return &Error{
		Code:    ECONTENTION,
		Op:      op,
		Message: "The request conflicted with a concurrent update. Please retry.",
	}
}

// TokenExpired creates a token-redemption failure for an expired token.
// The caller should request fresh access, not retry the stale token.
func TokenExpired(op string) *Error {
	return &Error{
		Code:    ETOKENEXPIRED,
		Op:      op,
		Message: "Access token has expired. Request access again.",
	}
}

// BadSignature creates a token-redemption failure for a token whose
// signature does not verify. Always fails closed.
func BadSignature(op string) *Error {
	return &Error{
		Code:    EBADSIG,
		Op:      op,
		Message: "Access token is not valid.",
	}
}

// TokenReused creates a token-redemption failure for a single-use token
// presented a second time.
func TokenReused(op string) *Error {
	return &Error{
		Code:    ETOKENREUSED,
		Op:      op,
		Message: "Access token has already been used. Request access again.",
	}
}

// ContentUnavailable creates a data-integrity error: the catalog references
// a resource that cannot be served. This is deliberately distinct from quota
// and token failures so operators can tell catalog bugs apart from
// entitlement bugs. The system never substitutes alternate content for it.
func ContentUnavailable(op, contentID string) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: fmt.Sprintf("Content %q is currently unavailable.", contentID),
	}
}
