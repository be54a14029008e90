package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("catalog down")

func fail(_ context.Context) (int, error) { return 0, errDown }
func succeed(_ context.Context) (int, error) { return 1, nil }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)}
	b := NewBreaker(cfg)
	b.now = clock.now
	return b, clock
}

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{})
	v, err := Guard(context.Background(), b, succeed)
	if err != nil || v != 1 {
		t.Fatalf("got %d, %v", v, err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		_, _ = Guard(context.Background(), b, fail)
	}
	if b.State() != Closed || b.Failures() != 2 {
		t.Fatalf("expected closed with 2 failures, got %s/%d", b.State(), b.Failures())
	}

	_, _ = Guard(context.Background(), b, fail)
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	called := false
	_, err := Guard(context.Background(), b, func(_ context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 3})
	_, _ = Guard(context.Background(), b, fail)
	_, _ = Guard(context.Background(), b, fail)
	_, _ = Guard(context.Background(), b, succeed)
	if b.Failures() != 0 {
		t.Errorf("expected 0 failures, got %d", b.Failures())
	}
	_, _ = Guard(context.Background(), b, fail)
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	var transitions []string
	b, clock := newTestBreaker(BreakerConfig{
		Threshold: 1,
		Cooldown:  time.Minute,
		OnChange:  func(from, to BreakerState) { transitions = append(transitions, from.String()+">"+to.String()) },
	})

	_, _ = Guard(context.Background(), b, fail)
	clock.t = clock.t.Add(time.Minute)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}

	if _, err := Guard(context.Background(), b, succeed); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed after trial call, got %s", b.State())
	}

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Minute})
	_, _ = Guard(context.Background(), b, fail)
	_, _ = Guard(context.Background(), b, fail)

	clock.t = clock.t.Add(2 * time.Minute)
	_, _ = Guard(context.Background(), b, fail)
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}
	if _, err := Guard(context.Background(), b, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen right after reopening, got %v", err)
	}
}

func TestBreaker_CountsFilter(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{
		Threshold: 1,
		Counts:    func(err error) bool { return IsTransient(err) },
	})
	_, _ = Guard(context.Background(), b, fail)
	if b.State() != Closed {
		t.Errorf("non-counted error must not open, got %s", b.State())
	}
	_, _ = Guard(context.Background(), b, func(_ context.Context) (int, error) {
		return 0, NewTransientError(errDown, 503)
	})
	if b.State() != Open {
		t.Errorf("expected open, got %s", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{Threshold: 1})
	_, _ = Guard(context.Background(), b, fail)
	b.Reset()
	if b.State() != Closed || b.Failures() != 0 {
		t.Errorf("expected clean closed breaker, got %s/%d", b.State(), b.Failures())
	}
}

func TestBreakerState_String(t *testing.T) {
	if BreakerState(9).String() != "unknown" {
		t.Error("expected unknown")
	}
}
