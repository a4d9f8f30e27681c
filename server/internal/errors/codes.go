package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/hrygo/lifesaver/plugin/ai/orchestrator"
	"github.com/hrygo/lifesaver/plugin/ai/report"
	"github.com/hrygo/lifesaver/store"
)

// ErrorCode represents a specific error type for API operations.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates an unknown session or report.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeSessionClosed indicates a turn or close on a terminal session.
	ErrCodeSessionClosed ErrorCode = "SESSION_CLOSED"
	// ErrCodeSessionNotTerminal indicates a report requested for an open session.
	ErrCodeSessionNotTerminal ErrorCode = "SESSION_NOT_TERMINAL"
	// ErrCodeConcurrentTurn indicates the session changed under the turn.
	ErrCodeConcurrentTurn ErrorCode = "CONCURRENT_TURN"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// EmergencyNotice accompanies every failure that leaves the caller without guidance.
const EmergencyNotice = "Something went wrong on our side. If this is an emergency, call your local emergency number (such as 911 or 112) now."

var statusByCode = map[ErrorCode]int{
	ErrCodeInvalidArgument:    http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeSessionClosed:      http.StatusConflict,
	ErrCodeSessionNotTerminal: http.StatusConflict,
	ErrCodeConcurrentTurn:     http.StatusConflict,
	ErrCodeRateLimitExceeded:  http.StatusTooManyRequests,
	ErrCodeContextCanceled:    499,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeInternal:           http.StatusInternalServerError,
}

// APIError represents a structured error returned to API clients.
type APIError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *APIError) WithContext(key string, value any) *APIError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the code to a response status.
func (e *APIError) HTTPStatus() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Convenience constructors for common error types.

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *APIError {
	return &APIError{Code: ErrCodeInvalidArgument, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *APIError {
	return &APIError{Code: ErrCodeNotFound, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *APIError {
	return &APIError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// Internal creates an internal error carrying the emergency notice.
func Internal(cause error) *APIError {
	return &APIError{Code: ErrCodeInternal, Message: EmergencyNotice, Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *APIError {
	return &APIError{Code: code, Message: msg, Cause: cause}
}

// FromError translates a domain error into an APIError.
func FromError(err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case stderrors.Is(err, orchestrator.ErrEmptyMessage),
		stderrors.Is(err, orchestrator.ErrMessageTooLong),
		stderrors.Is(err, store.ErrNotTerminalStatus):
		return Wrap(err, ErrCodeInvalidArgument, err.Error())
	case stderrors.Is(err, store.ErrNotFound):
		return Wrap(err, ErrCodeNotFound, "session not found")
	case stderrors.Is(err, store.ErrSessionClosed):
		return Wrap(err, ErrCodeSessionClosed, "session is closed")
	case stderrors.Is(err, report.ErrSessionNotTerminal):
		return Wrap(err, ErrCodeSessionNotTerminal, "session is still open")
	case stderrors.Is(err, store.ErrConcurrentTurn):
		return Wrap(err, ErrCodeConcurrentTurn, "session changed during the turn, retry with the same turn id")
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, EmergencyNotice)
	case stderrors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeContextCanceled, "operation canceled")
	}
	return Internal(err)
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an APIError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code
	}
	return defaultCode
}
