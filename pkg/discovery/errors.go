package discovery

import (
	"errors"
	"fmt"
)

var (
	// ErrSchedulerStopped is returned by Refresh once the scheduler has been stopped.
	ErrSchedulerStopped = errors.New("discovery scheduler stopped")
	// ErrRefreshSkipped is returned by Refresh when the rate limiter or a running cycle suppressed it.
	ErrRefreshSkipped = errors.New("discovery refresh skipped")
)

// GroupEnumerationError is returned when the API group list cannot be fetched.
// Without it no resource list endpoints are known, so the whole cycle fails.
type GroupEnumerationError struct {
	Path string
	Err  error
}

func (e *GroupEnumerationError) Error() string {
	return fmt.Sprintf("failed to enumerate API groups from %s: %v", e.Path, e.Err)
}

func (e *GroupEnumerationError) Unwrap() error {
	return e.Err
}

// EndpointFetchError records a resource list endpoint that could not be fetched.
// It never fails a cycle; the endpoint is left out of the catalog.
type EndpointFetchError struct {
	Path string
	Err  error
}

func (e *EndpointFetchError) Error() string {
	return fmt.Sprintf("failed to fetch API resources from %s: %v", e.Path, e.Err)
}

func (e *EndpointFetchError) Unwrap() error {
	return e.Err
}
