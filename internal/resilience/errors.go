package resilience

import (
	"errors"
	"net/http"
)

// TransientError marks a failure that may succeed if repeated. The catalog
// client wraps transport failures and throttling or server-side statuses in
// it; everything else is permanent.
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

// NewTransientError marks err as transient. statusCode is 0 for failures
// that never produced a response.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether a TransientError is anywhere in err's chain.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsTransientHTTPStatus reports whether an HTTP status is a throttling or
// server-side condition.
func IsTransientHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
