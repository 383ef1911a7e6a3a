// Package fetcher is the single network boundary of the crawl pipeline. It
// issues polite HTTP GETs with a pre-request jitter delay, retries 429
// responses with capped exponential backoff, and reports failures as typed
// errors so callers can classify outcomes without string matching. All retry
// policy lives here; callers see one request per Fetch call.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// Logger provides structured logging.
type Logger interface {
	Debug(msg string, fields ...any)
	Warn(msg string, fields ...any)
}

// Response is the outcome of a successful fetch. A non-2xx status is still a
// successful fetch; only network failures and exhausted 429 retries are errors.
type Response struct {
	URL           string
	StatusCode    int
	Body          []byte
	Headers       http.Header
	Elapsed       time.Duration
	Attempts      int
	RateLimitHits int
}

// Observed429 reports whether any attempt for this URL was rate limited,
// including attempts that later recovered.
func (r *Response) Observed429() bool {
	return r.RateLimitHits > 0
}

// Client fetches pages over HTTP. It does not follow redirects; 3xx responses
// are returned as-is so callers can classify them.
type Client struct {
	httpClient *http.Client
	log        Logger
	cfg        Config
}

// New creates a fetch client with the given configuration.
func New(log Logger, cfg Config) *Client {
	cfg = cfg.WithDefaults()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log,
		cfg: cfg,
	}
}

// Fetch retrieves a single URL. It sleeps a uniform random jitter delay
// before the first attempt, then retries only on HTTP 429 with backoff
// delays of min(base·2^(attempt−1), cap). Timeouts and transport errors are
// terminal. The returned error is one of *TimeoutError, *TransportError,
// *RateLimitedError, or the context's error if the caller cancelled.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	if err := c.sleepJitter(ctx); err != nil {
		return nil, err
	}

	rateLimitHits := 0
	var lastElapsed time.Duration

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, rawURL)
		if err != nil {
			return nil, err
		}

		lastElapsed = resp.Elapsed

		if resp.StatusCode != http.StatusTooManyRequests {
			resp.Attempts = attempt
			resp.RateLimitHits = rateLimitHits
			return resp, nil
		}

		rateLimitHits++

		if attempt < c.cfg.MaxAttempts {
			delay := c.backoffDelay(attempt)
			c.log.Warn("rate limited, retrying",
				"url", rawURL,
				"attempt", attempt,
				"max_attempts", c.cfg.MaxAttempts,
				"delay", delay.String(),
			)

			if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}

	c.log.Warn("rate limited, giving up", "url", rawURL, "attempts", c.cfg.MaxAttempts)

	return nil, &RateLimitedError{
		URL:      rawURL,
		Attempts: c.cfg.MaxAttempts,
		Elapsed:  lastElapsed,
	}
}

// doRequest performs one HTTP GET and reads the capped response body.
func (c *Client) doRequest(ctx context.Context, rawURL string) (*Response, error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if reqErr != nil {
		return nil, &TransportError{URL: rawURL, Err: fmt.Errorf("create request: %w", reqErr)}
	}

	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, classifyFetchError(rawURL, time.Since(start), doErr)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBodyBytes)

	body, readErr := io.ReadAll(limited)
	elapsed := time.Since(start)
	if readErr != nil {
		return nil, classifyFetchError(rawURL, elapsed, readErr)
	}

	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header.Clone(),
		Elapsed:    elapsed,
	}, nil
}

// sleepJitter sleeps a uniform random duration in [JitterMin, JitterMax].
func (c *Client) sleepJitter(ctx context.Context) error {
	delay := c.cfg.JitterMin
	if span := c.cfg.JitterMax - c.cfg.JitterMin; span > 0 {
		delay += time.Duration(rand.Float64() * float64(span))
	}

	return sleepContext(ctx, delay)
}

// backoffDelay returns min(base·2^(attempt−1), cap) for a 1-based attempt.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.BackoffBase << uint(attempt-1)
	if delay <= 0 || delay > c.cfg.BackoffCap {
		return c.cfg.BackoffCap
	}
	return delay
}

// sleepContext sleeps for d or returns early with the context's error.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// classifyFetchError maps a transport-level failure to a typed error.
func classifyFetchError(rawURL string, elapsed time.Duration, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{URL: rawURL, Elapsed: elapsed}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{URL: rawURL, Elapsed: elapsed}
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}

	return &TransportError{URL: rawURL, Elapsed: elapsed, Err: err}
}
