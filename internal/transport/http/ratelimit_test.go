package http

import (
	"testing"
	"time"
)

func TestRateLimiterRefills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newRateLimiter(2)
	rl.now = func() time.Time { return now }

	if !rl.allow() || !rl.allow() {
		t.Fatalf("burst of two should pass")
	}
	if rl.allow() {
		t.Fatalf("third message should be limited")
	}

	now = now.Add(30 * time.Second)
	if !rl.allow() {
		t.Fatalf("one token should refill after half a minute")
	}
	if rl.allow() {
		t.Fatalf("only one token refilled")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0)
	for range 1000 {
		if !rl.allow() {
			t.Fatalf("disabled limiter must allow everything")
		}
	}
}
