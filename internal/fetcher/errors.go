package fetcher

import (
	"fmt"
	"time"
)

// TimeoutError reports that a fetch exceeded the configured request timeout.
// Timeouts are terminal; the fetcher never retries them.
type TimeoutError struct {
	URL     string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout fetching %s after %s", e.URL, e.Elapsed)
}

// TransportError reports a network-level failure (DNS, connection refused,
// TLS, truncated body). Terminal, no retry.
type TransportError struct {
	URL     string
	Elapsed time.Duration
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RateLimitedError reports that every attempt for a URL returned HTTP 429
// and the retry budget is exhausted. The final status code is always 429.
type RateLimitedError struct {
	URL      string
	Attempts int
	Elapsed  time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited fetching %s after %d attempts", e.URL, e.Attempts)
}
