package catalog

import (
	"errors"

	"github.com/sells-group/district-poi/internal/resilience"
)

// Kind classifies a failed catalog request.
type Kind int

const (
	// KindTransport is a network failure or timeout.
	KindTransport Kind = iota + 1
	// KindHTTPStatus is a non-200, non-404 HTTP status.
	KindHTTPStatus
	// KindMalformed is a body that could not be decoded.
	KindMalformed
	// KindAPI is a meta.code other than 200 or 404.
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTPStatus:
		return "http_status"
	case KindMalformed:
		return "malformed"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// Error is returned by Client methods for classified failures.
type Error struct {
	Kind       Kind
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError classifies err. Transport failures and retryable HTTP statuses are
// additionally marked transient so resilience.Retry can retry them.
func newError(kind Kind, status int, body string, err error) *Error {
	if kind == KindTransport || (kind == KindHTTPStatus && resilience.IsTransientHTTPStatus(status)) {
		err = resilience.NewTransientError(err, status)
	}
	return &Error{Kind: kind, StatusCode: status, Body: body, Err: err}
}

// KindOf returns the Kind of err, or 0 if err is not a catalog error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
