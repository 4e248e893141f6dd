package errors

import (
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// statusError is implemented by every error class that maps onto an HTTP status
type statusError interface {
	error
	status() int
}

type baseError struct {
	message string
}

func (e *baseError) Error() string {
	return e.message
}

// ValidationError rejects malformed input
type ValidationError struct{ baseError }

func (*ValidationError) status() int { return fasthttp.StatusBadRequest }

func NewValidationError(message string) *ValidationError {
	return &ValidationError{baseError{message: message}}
}

// UnauthorizedError reports a failed login step
type UnauthorizedError struct{ baseError }

func (*UnauthorizedError) status() int { return fasthttp.StatusUnauthorized }

func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{baseError{message: message}}
}

func NewUnauthorizedErrorf(format string, args ...interface{}) *UnauthorizedError {
	return &UnauthorizedError{baseError{message: fmt.Sprintf(format, args...)}}
}

// PermissionError reports an operation on an account the user does not own or may not touch
type PermissionError struct{ baseError }

func (*PermissionError) status() int { return fasthttp.StatusForbidden }

func NewPermissionError(message string) *PermissionError {
	return &PermissionError{baseError{message: message}}
}

// NotFoundError reports a missing account, login or job
type NotFoundError struct{ baseError }

func (*NotFoundError) status() int { return fasthttp.StatusNotFound }

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{baseError{message: message}}
}

// ConflictError reports an operation that does not fit the current state
type ConflictError struct{ baseError }

func (*ConflictError) status() int { return fasthttp.StatusConflict }

func NewConflictError(message string) *ConflictError {
	return &ConflictError{baseError{message: message}}
}

// ServiceUnavailableError reports a dependency that cannot serve right now
type ServiceUnavailableError struct{ baseError }

func (*ServiceUnavailableError) status() int { return fasthttp.StatusServiceUnavailable }

func NewServiceUnavailableError(message string) *ServiceUnavailableError {
	return &ServiceUnavailableError{baseError{message: message}}
}

// InternalError is a failure whose details stay in the logs
type InternalError struct{ baseError }

func (*InternalError) status() int { return fasthttp.StatusInternalServerError }

func NewInternalError(message string) *InternalError {
	return &InternalError{baseError{message: message}}
}

// TooManyRequestsError reports a cooldown or flood wait, RetryAfter is surfaced as a header
type TooManyRequestsError struct {
	baseError
	RetryAfter time.Duration
}

func (*TooManyRequestsError) status() int { return fasthttp.StatusTooManyRequests }

func NewTooManyRequestsError(message string, retryAfter time.Duration) *TooManyRequestsError {
	return &TooManyRequestsError{baseError: baseError{message: message}, RetryAfter: retryAfter}
}

func NewTooManyRequestsErrorf(retryAfter time.Duration, format string, args ...interface{}) *TooManyRequestsError {
	return &TooManyRequestsError{baseError: baseError{message: fmt.Sprintf(format, args...)}, RetryAfter: retryAfter}
}
