package http

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrRetriesExhausted is matched by errors.Is on every error returned after the
// retry ceiling was reached.
var ErrRetriesExhausted = errors.New("max retries exceeded")

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error.
func (e *HTTPError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError returns true if this is a server error.
func (e *HTTPError) IsServerError() bool {
	return e.StatusCode >= 500
}

// RetryError is returned once a request failed on every allowed attempt.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Is reports ErrRetriesExhausted as a match so callers need not know the attempt count.
func (e *RetryError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

// isRetryable determines if an error should be retried. Anything that is not an
// HTTP status error is a transport failure and is retried.
func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusConflict:
			return true
		}
		return httpErr.IsRateLimited() || httpErr.IsServerError()
	}
	return true
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an HTTP error.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
