package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError marks a failure worth retrying, such as a rate-limited
// geocode call or a flaky TIGER download. StatusCode carries the HTTP status
// when one was involved.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable. Pass 0 when no HTTP status
// applies.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// retryableMessages covers wrapped transport failures from the HTTP and FTP
// clients that surface only as strings. Census and Nominatim endpoints drop
// idle connections and time out under load; anything else (bad zip, parse
// error, unknown state) is permanent.
var retryableMessages = []string{
	"connection reset by peer",
	"i/o timeout",
	"tls handshake timeout",
	"no such host",
	"temporary failure in name resolution",
}

// IsTransient reports whether a download or geocode failure is worth another
// attempt: an explicit TransientError, a network timeout, a refused or reset
// connection, or a known transport failure message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether an HTTP status from the Census file
// server or Nominatim justifies a retry. Client errors other than timeouts
// and rate limits are permanent; a 404 means the state archive or address
// simply does not exist.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
