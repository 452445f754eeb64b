package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/status-im/credential-host/logging"
)

// maxErrorBody is how much of a failed response is kept in a StatusError
const maxErrorBody = 4096

// Client sends requests with retries, backoff and an optional per-request rate limiter
type Client struct {
	http     *http.Client
	policy   RetryPolicy
	observer Observer
	limiter  func(*http.Request) *rate.Limiter
	logger   logging.Logger
}

type ClientOption func(*Client)

func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLimiter sets a callback returning the limiter a request must wait on, or nil
func WithLimiter(fn func(*http.Request) *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = fn
	}
}

func WithClientLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRoundTripper replaces the dialing transport
func WithRoundTripper(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

func NewClient(policy RetryPolicy, opts ...ClientOption) *Client {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	c := &Client{
		http: &http.Client{
			Timeout: policy.RequestTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: policy.ConnectTimeout,
				}).DialContext,
			},
		},
		policy: policy,
		logger: logging.NoopLogger{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Result is a 2xx response with its body already read
type Result struct {
	Response *http.Response
	Body     []byte
	Attempts int
	// Duration is the time spent in the successful attempt
	Duration time.Duration
}

// StatusError is returned for responses outside the 2xx range
type StatusError struct {
	StatusCode int
	RetryAfter string
	Body       string
}

func (e *StatusError) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("upstream responded %d (retry after %s): %s", e.StatusCode, e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("upstream responded %d: %s", e.StatusCode, e.Body)
}

// Send performs req, retrying transport errors and retryable statuses until
// the policy's attempts are used up or the request context ends. A request
// with a body is replayed through req.GetBody.
func (c *Client) Send(req *http.Request) (*Result, error) {
	ctx := req.Context()
	var (
		lastErr    error
		retryAfter time.Duration
	)

	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		if attempt > 1 {
			if c.observer != nil {
				c.observer.OnRetry(req, attempt-1, lastErr)
			}

			wait := c.policy.Wait(attempt-1, retryAfter)
			c.logger.Debug("Retrying request",
				"host", req.URL.Host,
				"attempt", attempt,
				"attempts", c.policy.Attempts,
				"backoff", wait,
				"error", lastErr)

			if err := sleepContext(ctx, wait); err != nil {
				return nil, fmt.Errorf("request cancelled while backing off: %w", err)
			}
			if err := rewindBody(req); err != nil {
				return nil, err
			}
		}

		if c.limiter != nil {
			if l := c.limiter(req); l != nil {
				if err := l.Wait(ctx); err != nil {
					c.observe(req, OutcomeError)
					return nil, fmt.Errorf("rate limiter wait failed: %w", err)
				}
			}
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			c.observe(req, OutcomeError)
			lastErr = fmt.Errorf("request failed after %s: %w", time.Since(start).Round(time.Millisecond), err)
			retryAfter = 0
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}

		body, err := readResponse(resp)
		duration := time.Since(start)
		if err == nil {
			c.observe(req, OutcomeSuccess)
			return &Result{Response: resp, Body: body, Attempts: attempt, Duration: duration}, nil
		}

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			c.observe(req, OutcomeError)
			return nil, err
		}
		if !Retryable(statusErr.StatusCode) {
			c.observe(req, OutcomeRejected)
			return nil, err
		}
		c.observe(req, OutcomeRetryable)
		lastErr = err
		retryAfter = RetryAfter(statusErr.RetryAfter, time.Now())
	}

	return nil, fmt.Errorf("all %d attempts failed, last error: %w", c.policy.Attempts, lastErr)
}

func (c *Client) observe(req *http.Request, outcome Outcome) {
	if c.observer != nil {
		c.observer.OnAttempt(req, outcome)
	}
}

func rewindBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to rewind request body: %w", err)
	}
	req.Body = body
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// readResponse reads and closes the body, turning non-2xx statuses into a StatusError
func readResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Body:       string(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	return body, nil
}
