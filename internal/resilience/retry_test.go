package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Backoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetry_ZeroPolicySingleAttempt(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), RetryPolicy{}, func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("timeout"), 0)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_SucceedsAfterTransient(t *testing.T) {
	var calls int
	v, err := Retry(context.Background(), fastPolicy(3), func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("busy"), 503)
		}
		return "page", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "page" || calls != 3 {
		t.Errorf("got %q after %d calls", v, calls)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	var calls int
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	_, err := Retry(context.Background(), p, func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("down"), 500)
	})
	if err == nil || err.Error() != "down" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("unexpected retry callbacks %v", retried)
	}
}

func TestRetry_PermanentNotRetried(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), fastPolicy(5), func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("api error 400")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_CircuitOpenNotRetried(t *testing.T) {
	var calls int
	_, _ = Retry(context.Background(), fastPolicy(5), func(_ context.Context) (int, error) {
		calls++
		return 0, ErrCircuitOpen
	})
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_CustomRetryable(t *testing.T) {
	var calls int
	p := fastPolicy(2)
	p.Retryable = func(error) bool { return true }
	_, _ = Retry(context.Background(), p, func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("anything")
	})
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetry_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Attempts: 5, Backoff: time.Hour, MaxBackoff: time.Hour}

	var calls int
	done := make(chan error, 1)
	go func() {
		_, err := Retry(ctx, p, func(_ context.Context) (int, error) {
			calls++
			return 0, NewTransientError(errors.New("busy"), 503)
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop on cancel")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestWithRetries(t *testing.T) {
	p := WithRetries(2)
	if p.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", p.Attempts)
	}
	if WithRetries(0).Attempts != 1 {
		t.Error("zero retries should make a single attempt")
	}
}

func TestRetryPolicy_DelayCapped(t *testing.T) {
	p := RetryPolicy{Backoff: 100 * time.Millisecond, MaxBackoff: 250 * time.Millisecond}.withDefaults()
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}
