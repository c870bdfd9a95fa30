package marketfeed

import (
	"context"
	"sync"
	"time"
)

// rateLimiter enforces a minimum gap between requests and a cap on
// requests per rolling minute, whichever forces the longer wait.
type rateLimiter struct {
	mu           sync.Mutex
	minInterval  time.Duration
	maxPerMinute int
	lastAt       time.Time
	window       []time.Time
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
}

func newRateLimiter(minInterval time.Duration, maxPerMinute int) *rateLimiter {
	return &rateLimiter{
		minInterval:  minInterval,
		maxPerMinute: maxPerMinute,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// waitNext blocks until the next request is allowed, then records it.
func (r *rateLimiter) waitNext(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lastAt.IsZero() {
		if gap := r.minInterval - r.now().Sub(r.lastAt); gap > 0 {
			if err := r.sleep(ctx, gap); err != nil {
				return err
			}
		}
	}

	r.trim()
	if len(r.window) >= r.maxPerMinute {
		wait := time.Minute - r.now().Sub(r.window[0])
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
		r.trim()
	}

	r.lastAt = r.now()
	r.window = append(r.window, r.lastAt)
	return nil
}

func (r *rateLimiter) trim() {
	cutoff := r.now().Add(-time.Minute)
	i := 0
	for i < len(r.window) && !r.window[i].After(cutoff) {
		i++
	}
	r.window = r.window[i:]
}
