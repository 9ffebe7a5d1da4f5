package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// ErrorKind groups provider failures for retry and reporting.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindConnection  ErrorKind = "connection"
	KindAPIStatus   ErrorKind = "api_status"
	KindUnknown     ErrorKind = "unknown"
)

// Classify maps err to an ErrorKind. It returns "" for a nil error.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return KindRateLimited
		}
		return KindAPIStatus
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return KindConnection
	}
	return KindUnknown
}

// IsTransient reports whether err is worth retrying: rate limits, timeouts
// and connection failures.
func IsTransient(err error) bool {
	switch Classify(err) {
	case KindRateLimited, KindTimeout, KindConnection:
		return true
	default:
		return false
	}
}
