package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4", 3, 1) {
			t.Fatalf("request %d should pass within burst", i)
		}
	}
	if l.Allow("1.2.3.4", 3, 1) {
		t.Fatalf("fourth request should be limited")
	}
	if !l.Allow("5.6.7.8", 3, 1) {
		t.Fatalf("other keys have their own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("1.2.3.4", 3, 1) {
		t.Fatalf("one token should have refilled")
	}
	if l.Allow("1.2.3.4", 3, 1) {
		t.Fatalf("only one token refills per second")
	}
}

func TestLimiterSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New()
	l.now = func() time.Time { return now }

	l.Allow("a", 1, 1)
	now = now.Add(10 * time.Minute)
	l.Allow("b", 1, 1)

	if n := l.Sweep(5 * time.Minute); n != 1 {
		t.Fatalf("expected one idle bucket swept, got %d", n)
	}
	if _, ok := l.m["b"]; !ok {
		t.Fatalf("active bucket must survive")
	}
}
