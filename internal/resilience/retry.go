package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls Retry. The zero value makes a single attempt.
type RetryPolicy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 mean 1.
	Attempts int

	// Backoff is the delay before the first retry. Default 500ms.
	Backoff time.Duration

	// MaxBackoff caps the delay. Default 10s.
	MaxBackoff time.Duration

	// Jitter randomizes each delay by up to this fraction in either direction.
	Jitter float64

	// Retryable decides whether an error is worth another attempt. Nil means
	// IsTransient.
	Retryable func(err error) bool

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// WithRetries returns a policy making retries additional attempts with a
// doubling backoff.
func WithRetries(retries int) RetryPolicy {
	return RetryPolicy{
		Attempts:   retries + 1,
		Backoff:    500 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
		Jitter:     0.25,
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.Attempts || ctx.Err() != nil || !p.Retryable(err) {
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// delay is the sleep before retry number attempt (1-based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := math.Min(float64(p.Backoff)*math.Pow(2, float64(attempt-1)), float64(p.MaxBackoff))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// LogRetries returns an OnRetry callback logging each retry at warn level.
func LogRetries(log *zap.Logger, op string) func(int, error) {
	return func(attempt int, err error) {
		log.Warn("retrying request",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
