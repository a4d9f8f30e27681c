package reasoner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrorClass represents the category of error for retry decisions.
type ErrorClass int

const (
	// ErrorClassTransient indicates a temporary error that should be retried.
	// Examples: network timeout, rate limiting, 5xx from the provider
	ErrorClassTransient ErrorClass = iota

	// ErrorClassPermanent indicates a non-retryable error.
	// Examples: invalid API key, unknown model, malformed request
	ErrorClassPermanent
)

// String returns the string representation of ErrorClass.
func (e ErrorClass) String() string {
	switch e {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with its classification and retry guidance.
type ClassifiedError struct {
	Class      ErrorClass
	Original   error
	RetryAfter time.Duration // Suggested delay before retry (for transient errors)
}

// Error returns a formatted error message.
func (c *ClassifiedError) Error() string {
	if c.Original == nil {
		return fmt.Sprintf("classified error: class=%s", c.Class)
	}
	return fmt.Sprintf("%s: %v", c.Class, c.Original)
}

// Unwrap returns the original error for errors.Is/As.
func (c *ClassifiedError) Unwrap() error {
	return c.Original
}

// IsTransient returns true if the error is temporary and should be retried.
func (c *ClassifiedError) IsTransient() bool {
	return c != nil && c.Class == ErrorClassTransient
}

// ErrMalformedOutput is returned when the backend answers with unusable content.
var ErrMalformedOutput = errors.New("malformed reasoner output")

// ClassifyError analyzes an error and determines its class and retry strategy.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	// Caller cancellation is never worth a retry.
	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
	}

	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || isTimeoutError(err) {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err}
	}

	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrMalformedOutput) || isNetworkError(err) {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(err, apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(err, reqErr.HTTPStatusCode)
	}

	// Default to permanent for unknown errors (fail safe)
	return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
}

func classifyStatus(err error, status int) *ClassifiedError {
	switch {
	case status == http.StatusTooManyRequests:
		return &ClassifiedError{Class: ErrorClassTransient, Original: err, RetryAfter: time.Second}
	case status >= 500:
		return &ClassifiedError{Class: ErrorClassTransient, Original: err}
	default:
		return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
	}
}

// isNetworkError checks if an error is network-related (transient).
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"network is unreachable",
		"no such host",
		"temporary failure",
		"dial tcp",
		"eof",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// isTimeoutError checks if an error is timeout-related (transient).
func isTimeoutError(err error) bool {
	errMsg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "deadline exceeded", "operation timed out"} {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth one retry.
func IsTransient(err error) bool {
	return ClassifyError(err).IsTransient()
}
