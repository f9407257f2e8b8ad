package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Client fetches pages from the source site with a bounded retry policy
// and a fixed pacing delay after every successful request. The pacing
// delay is a deliberate throughput cap against rate limiting, not a
// correctness mechanism. The client keeps no cache and does no
// deduplication; callers own both.
type Client struct {
	httpClient *http.Client
	retries    int
	backoff    time.Duration
	pace       time.Duration
	userAgent  string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets how many times a failed request is retried.
// Zero means a single attempt.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.retries = n
	}
}

// WithBackoff sets the backoff base. The wait before retry n is base * n.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.backoff = d
	}
}

// WithPacing sets the delay slept after each successful request.
func WithPacing(d time.Duration) Option {
	return func(c *Client) {
		c.pace = d
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// NewClient creates a fetch client with conservative defaults:
// 15s timeout, 3 retries, 1.5s backoff base, 1s pacing delay.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retries:    3,
		backoff:    1500 * time.Millisecond,
		pace:       time.Second,
		userAgent:  defaultUserAgent,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the markup at url. Transport failures and non-2xx
// responses are retried up to the configured count; the last error is
// surfaced wrapped in *Error once retries are exhausted. On success the
// pacing delay is slept before returning.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= c.retries; attempt++ {
		body, status, err := c.do(ctx, url)
		if err == nil {
			if err := sleepCtx(ctx, c.pace); err != nil {
				return "", &Error{URL: url, Err: err}
			}
			return body, nil
		}
		lastErr = err
		lastStatus = status

		if attempt >= c.retries {
			break
		}
		delay := c.backoff * time.Duration(attempt+1)
		c.logger.Debug("fetch attempt failed, backing off",
			"url", url, "attempt", attempt+1, "delay", delay, "err", err)
		if err := sleepCtx(ctx, delay); err != nil {
			return "", &Error{URL: url, StatusCode: lastStatus, Err: err}
		}
	}

	c.logger.Warn("fetch retries exhausted", "url", url, "err", lastErr)
	return "", &Error{URL: url, StatusCode: lastStatus, Err: lastErr}
}

func (c *Client) do(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return string(body), resp.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
