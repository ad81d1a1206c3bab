package client

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/pagesim/pkg/pager"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled while
	// waiting for a page or a backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrBlocked is returned when the rate limit tracker refuses the request.
	ErrBlocked = errors.New("request blocked: rate limit critical")

	// ErrCircuitOpen is returned while the circuit breaker rejects requests.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrTimeout is returned when a single attempt waits longer than
	// Config.AttemptTimeout.
	ErrTimeout = errors.New("page request timed out")
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassRateLimit is the backend asking the caller to slow down.
	ErrorClassRateLimit = ErrorClass(pager.ClassRateLimit)

	// ErrorClassInvalidCursor is a malformed cursor.
	ErrorClassInvalidCursor = ErrorClass(pager.ClassInvalidCursor)

	// ErrorClassTimeout is an attempt that outlived its timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassCircuitOpen is a request rejected by the circuit breaker.
	ErrorClassCircuitOpen ErrorClass = "circuit_open"
)

// PageError is a failed page request with its classification.
type PageError struct {
	Class       ErrorClass
	Description string
	Err         error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("page %s error: %s: %v", e.Class, e.Description, e.Err)
	}
	return fmt.Sprintf("page %s error: %s", e.Class, e.Description)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PageError) Unwrap() error {
	return e.Err
}

// fromFetchError converts a simulator failure payload into a PageError.
func fromFetchError(fe *pager.FetchError) *PageError {
	return &PageError{
		Class:       ErrorClass(fe.Class),
		Description: fe.Description,
		Err:         fe,
	}
}

// classify extracts the class of err, or "" when it has none.
func classify(err error) ErrorClass {
	var pe *PageError
	if errors.As(err, &pe) {
		return pe.Class
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return ErrorClassTimeout
	case errors.Is(err, ErrCircuitOpen):
		return ErrorClassCircuitOpen
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassRateLimit:
		return true
	case ErrorClassTimeout:
		return true
	case ErrorClassInvalidCursor:
		// the same cursor will never decode
		return false
	case ErrorClassCircuitOpen:
		return false
	default:
		return false
	}
}
