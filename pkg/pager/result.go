package pager

import (
	"fmt"

	"github.com/Sternrassler/pagesim/pkg/dataset"
)

// ErrorClass classifies a failed fetch.
type ErrorClass string

const (
	// ClassRateLimit is the simulated transient "refreshing too fast" failure.
	// Callers may retry it.
	ClassRateLimit ErrorClass = "rate_limit"

	// ClassInvalidCursor is returned for cursors that do not decode to a
	// non-negative offset. Retrying with the same cursor cannot succeed.
	ClassInvalidCursor ErrorClass = "invalid_cursor"
)

// Failure descriptions delivered to callers.
const (
	DescriptionRateLimited   = "Please do not refresh rapidly. Wait until listed"
	DescriptionInvalidCursor = "There is no People List to show! Please try again."
)

// FetchError is the failure payload of a fetch.
type FetchError struct {
	Class       ErrorClass `json:"class"`
	Description string     `json:"errorDescription"`
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Description)
}

// Retryable reports whether the same request may succeed later.
func (e *FetchError) Retryable() bool {
	return e.Class == ClassRateLimit
}

// Page is the success payload of a fetch.
type Page struct {
	Records []dataset.Record `json:"records"`
	Next    Cursor           `json:"next"`
}

// Exhausted reports whether the page claims to be the last one.
func (p *Page) Exhausted() bool {
	return !p.Next.Present()
}

// Result is delivered once per fetch. Exactly one of Page and Err is set.
type Result struct {
	Page *Page
	Err  *FetchError
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Err == nil && r.Page != nil
}
