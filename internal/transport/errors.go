package transport

import (
	"fmt"
	"net/http"
)

// ErrorClass categorizes a transport failure for retry decisions
type ErrorClass string

const (
	// ClassNetwork covers connection, DNS, and timeout failures
	ClassNetwork ErrorClass = "network"
	// ClassClient covers 4xx responses other than rate limiting
	ClassClient ErrorClass = "client"
	// ClassServer covers 5xx responses
	ClassServer ErrorClass = "server"
	// ClassRateLimit covers 429 responses
	ClassRateLimit ErrorClass = "rate_limit"
)

// Error represents a failed HTTP exchange
type Error struct {
	URL        string
	StatusCode int
	Class      ErrorClass
	Message    string
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transport error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-200 status code to a failure class and whether
// retrying can help
func classifyStatus(statusCode int) (ErrorClass, bool) {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ClassRateLimit, true
	case statusCode >= 500:
		return ClassServer, true
	default:
		return ClassClient, false
	}
}
