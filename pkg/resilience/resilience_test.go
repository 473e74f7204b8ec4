package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Rifat977/search-bench/pkg/errors"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerTransitions(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker("baseline", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Second,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	clock := time.Unix(1000, 0)
	cb.now = func() time.Time { return clock }

	fail := func() error { return errBoom }
	ok := func() error { return nil }

	cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Fatal("opened before threshold")
	}
	cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatal("did not open at threshold")
	}
	if err := cb.Execute(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker returned %v", err)
	}

	clock = clock.Add(time.Second)
	if err := cb.Execute(fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe returned %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatal("failed probe should re-open")
	}

	clock = clock.Add(time.Second)
	if err := cb.Execute(ok); err != nil {
		t.Fatal(err)
	}
	if cb.State() != StateClosed {
		t.Fatal("successful probe should close")
	}

	want := []string{"closed->open", "open->half-open", "half-open->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	cb := NewCircuitBreaker("x", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, apperrors.ErrInvalidInput) },
	})
	cb.Execute(func() error { return apperrors.ErrInvalidInput })
	if cb.State() != StateClosed {
		t.Fatal("caller errors must not trip the breaker")
	}
	cb.Execute(func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatal("Reset did not close")
	}
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), "seed", cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}

	calls = 0
	err = Retry(context.Background(), "seed", cfg, func(context.Context) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}

	calls = 0
	cfg.Retryable = func(error) bool { return false }
	Retry(context.Background(), "seed", cfg, func(context.Context) error {
		calls++
		return errBoom
	})
	if calls != 1 {
		t.Fatalf("non-retryable error retried %d times", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "seed", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func(context.Context) error {
		return errBoom
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, apperrors.ErrTimeout) {
		t.Fatalf("err = %v", err)
	}
	if err := WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
}
