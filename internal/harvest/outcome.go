package harvest

import (
	"context"
	"errors"

	"github.com/sells-group/district-poi/internal/resilience"
	"github.com/sells-group/district-poi/pkg/catalog"
)

// Outcome is the reason a page loop stopped.
type Outcome int

const (
	// OutcomeEmptyPage means the catalog returned no items.
	OutcomeEmptyPage Outcome = iota
	// OutcomeTotalReached means the fetched count reached the reported total.
	OutcomeTotalReached
	// OutcomePageLimit means the page bound was reached with items remaining.
	OutcomePageLimit
	// OutcomeTransportError means the request never produced a response.
	OutcomeTransportError
	// OutcomeMalformed means the response body could not be decoded.
	OutcomeMalformed
	// OutcomeAPIError means the catalog answered with an error status.
	OutcomeAPIError
	// OutcomeCircuitOpen means the breaker rejected the request.
	OutcomeCircuitOpen
	// OutcomeCanceled means the context ended first.
	OutcomeCanceled
)

var outcomeNames = map[Outcome]string{
	OutcomeEmptyPage:      "empty_page",
	OutcomeTotalReached:   "total_reached",
	OutcomePageLimit:      "page_limit",
	OutcomeTransportError: "transport_error",
	OutcomeMalformed:      "malformed",
	OutcomeAPIError:       "api_error",
	OutcomeCircuitOpen:    "circuit_open",
	OutcomeCanceled:       "canceled",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Done reports whether the loop finished normally.
func (o Outcome) Done() bool {
	return o == OutcomeEmptyPage || o == OutcomeTotalReached || o == OutcomePageLimit
}

// outcomeOf classifies the error that ended a page loop.
func outcomeOf(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCanceled
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return OutcomeCircuitOpen
	}
	switch catalog.KindOf(err) {
	case catalog.KindTransport:
		return OutcomeTransportError
	case catalog.KindMalformed:
		return OutcomeMalformed
	default:
		return OutcomeAPIError
	}
}
