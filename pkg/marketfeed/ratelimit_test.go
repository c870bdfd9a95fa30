package marketfeed

import (
	"context"
	"testing"
	"time"
)

// fakeClock drives the limiter deterministically: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestLimiter(minInterval time.Duration, maxPerMinute int) (*rateLimiter, *fakeClock) {
	clock := newFakeClock()
	rl := newRateLimiter(minInterval, maxPerMinute)
	rl.now = clock.Now
	rl.sleep = clock.Sleep
	return rl, clock
}

func TestRateLimiter_MinInterval(t *testing.T) {
	rl, clock := newTestLimiter(500*time.Millisecond, 1000)
	ctx := context.Background()

	if err := rl.waitNext(ctx); err != nil {
		t.Fatalf("waitNext() failed: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("first request should not wait, slept %v", clock.sleeps)
	}

	if err := rl.waitNext(ctx); err != nil {
		t.Fatalf("waitNext() failed: %v", err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 500*time.Millisecond {
		t.Fatalf("second immediate request should wait the full interval, slept %v", clock.sleeps)
	}

	// After enough wall time has passed no wait is needed.
	clock.now = clock.now.Add(2 * time.Second)
	if err := rl.waitNext(ctx); err != nil {
		t.Fatalf("waitNext() failed: %v", err)
	}
	if len(clock.sleeps) != 1 {
		t.Fatalf("request after a quiet period should not wait, slept %v", clock.sleeps)
	}
}

func TestRateLimiter_RollingMinuteCap(t *testing.T) {
	rl, clock := newTestLimiter(0, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := rl.waitNext(ctx); err != nil {
			t.Fatalf("waitNext() failed: %v", err)
		}
		clock.now = clock.now.Add(time.Second)
	}
	if len(clock.sleeps) != 0 {
		t.Fatalf("requests under the cap should not wait, slept %v", clock.sleeps)
	}

	// Fourth request within the window must wait until the oldest entry
	// leaves the rolling minute.
	if err := rl.waitNext(ctx); err != nil {
		t.Fatalf("waitNext() failed: %v", err)
	}
	if len(clock.sleeps) != 1 {
		t.Fatalf("request over the cap should wait, slept %v", clock.sleeps)
	}
	if got := clock.sleeps[0]; got != 57*time.Second {
		t.Errorf("waited %v, want 57s until the oldest timestamp expires", got)
	}
}

func TestRateLimiter_ContextCancel(t *testing.T) {
	rl, _ := newTestLimiter(500*time.Millisecond, 1000)
	rl.sleep = sleepCtx // real sleeps so cancellation applies

	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.waitNext(ctx); err != nil {
		t.Fatalf("waitNext() failed: %v", err)
	}
	cancel()
	if err := rl.waitNext(ctx); err == nil {
		t.Fatal("expected context error from cancelled wait")
	}
}
