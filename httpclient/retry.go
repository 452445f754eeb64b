package httpclient

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls how requests sent with a credential are retried
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first
	Attempts    int
	BaseBackoff time.Duration
	// MaxBackoff caps the doubled backoff; 0 leaves it uncapped
	MaxBackoff     time.Duration
	ConnectTimeout time.Duration
	// RequestTimeout bounds one attempt including reading the response body
	RequestTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       3,
		BaseBackoff:    time.Second,
		MaxBackoff:     10 * time.Second,
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Backoff is the wait before retry n (1-based): BaseBackoff doubled per retry,
// capped at MaxBackoff, plus up to 50% jitter
func (p RetryPolicy) Backoff(n int) time.Duration {
	if p.BaseBackoff <= 0 {
		return 0
	}
	if n < 1 {
		n = 1
	}

	d := p.BaseBackoff
	for i := 1; i < n && (p.MaxBackoff <= 0 || d < p.MaxBackoff) && d < time.Hour; i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}

	if half := int64(d / 2); half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

// Wait is the pause before retry n. A longer delay asked for by the server
// through Retry-After replaces the backoff, still capped at MaxBackoff.
func (p RetryPolicy) Wait(n int, retryAfter time.Duration) time.Duration {
	d := p.Backoff(n)
	if retryAfter <= d {
		return d
	}
	if p.MaxBackoff > 0 && retryAfter > p.MaxBackoff {
		return max(d, p.MaxBackoff)
	}
	return retryAfter
}

// RetryAfter parses a Retry-After header given as delay-seconds or an HTTP
// date. It returns 0 when the value is empty, malformed or in the past.
func RetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		// anything past a day is treated as a day
		return time.Duration(min(secs, 86400)) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		return max(at.Sub(now), 0)
	}
	return 0
}

// Retryable reports whether a response status is worth another attempt
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
