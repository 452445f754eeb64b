package httpclient

import "net/http"

// Outcome classifies one attempt of a request
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeRetryable is a 429 or 5xx response worth another attempt
	OutcomeRetryable Outcome = "retryable"
	// OutcomeRejected is any other non-2xx response
	OutcomeRejected Outcome = "rejected"
	// OutcomeError is a transport failure or an abandoned limiter wait
	OutcomeError Outcome = "error"
)

// Observer is told about every attempt and every retry a Client makes
type Observer interface {
	OnAttempt(req *http.Request, outcome Outcome)
	OnRetry(req *http.Request, retry int, cause error)
}
