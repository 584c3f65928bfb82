package platform

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrForbidden indicates the bot lacks permission for the operation.
	ErrForbidden = errors.New("platform: forbidden")

	// ErrNotFound indicates the target entity no longer exists. Callers
	// treat this as already-gone and continue.
	ErrNotFound = errors.New("platform: not found")

	// ErrTransient indicates a temporary failure worth retrying.
	ErrTransient = errors.New("platform: transient failure")
)

// RateLimitError reports that the platform throttled the request.
// RetryAfter carries the server-provided wait; DefaultRetryAfter applies
// when the platform omitted it.
type RateLimitError struct {
	RetryAfter time.Duration
}

// DefaultRetryAfter is used when a rate-limit reply carries no retry hint.
const DefaultRetryAfter = 5 * time.Second

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("platform: rate limited, retry after %s", e.RetryAfter)
}

// Wait returns the server-provided retry interval, falling back to
// DefaultRetryAfter when none was supplied.
func (e *RateLimitError) Wait() time.Duration {
	if e.RetryAfter <= 0 {
		return DefaultRetryAfter
	}

	return e.RetryAfter
}

// AsRateLimit extracts a RateLimitError from an error chain.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}

	return nil, false
}
