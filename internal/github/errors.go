package github

import "errors"

var (
	// ErrNotFound marks a permanently missing repository or resource.
	// Not-found failures are never retried.
	ErrNotFound = errors.New("repository or resource not found")

	// ErrMaxRetries is returned when a request keeps failing after the
	// retry cap is exhausted.
	ErrMaxRetries = errors.New("maximum retries exceeded")
)
