package ratelimit

import (
	"testing"
	"time"
)

func TestAllowRefills(t *testing.T) {
	l := New(2, time.Second)
	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("a") {
		t.Fatal("third request in the same instant should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("keys are independent")
	}

	clock = clock.Add(500 * time.Millisecond)
	if !l.Allow("a") {
		t.Fatal("half a window refills one token")
	}
	if l.Allow("a") {
		t.Fatal("bucket should be empty again")
	}
}

func TestSweep(t *testing.T) {
	l := New(1, time.Second)
	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }
	l.Allow("a")
	clock = clock.Add(3 * time.Second)
	l.Allow("b")
	l.sweep()
	if l.Len() != 1 {
		t.Fatalf("Len = %d after sweep", l.Len())
	}
}

func TestRetryAfter(t *testing.T) {
	if got := New(100, time.Minute).RetryAfter(); got != 600*time.Millisecond {
		t.Fatalf("RetryAfter = %v", got)
	}
}
