package middleware

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimiter(3, time.Minute, logger)

	for i := 0; i < 3; i++ {
		if !rl.Allow("sub-1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("sub-1") {
		t.Error("request over the limit should be denied")
	}

	// Separate keys have separate budgets.
	if !rl.Allow("sub-2") {
		t.Error("a different key should not be affected")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimiter(1, 50*time.Millisecond, logger)

	if !rl.Allow("k") {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow("k") {
		t.Fatal("second request in window should be denied")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("k") {
		t.Error("request after window expiry should be allowed")
	}
}

func TestRateLimiterTimeUntilReset(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := NewRateLimiter(1, time.Minute, logger)

	if got := rl.TimeUntilReset("unknown"); got != 0 {
		t.Errorf("unknown key should report 0, got %v", got)
	}

	rl.Allow("k")
	got := rl.TimeUntilReset("k")
	if got <= 0 || got > time.Minute {
		t.Errorf("expected remaining time in (0, 1m], got %v", got)
	}
}
