package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/ducminhle1904/equity-backtest/internal/monitoring"
)

// RateLimiter enforces at most limit requests per window using a sliding
// window of request timestamps. The timestamp slice is the only state
// shared across concurrent fetch tasks and is guarded by the mutex.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	stamps []time.Time
}

// NewRateLimiter allows perWindow requests per window.
func NewRateLimiter(perWindow int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  perWindow,
		window: window,
	}
}

// Wait blocks until a request slot is available or the context is
// cancelled. On success the slot is already recorded.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if waited := time.Since(start); waited > time.Millisecond {
			monitoring.RecordRateLimitWait(waited)
		}
	}()

	for {
		rl.mu.Lock()
		now := time.Now()
		rl.evict(now)

		if len(rl.stamps) < rl.limit {
			rl.stamps = append(rl.stamps, now)
			rl.mu.Unlock()
			return nil
		}

		// Oldest stamp leaves the window first.
		wait := rl.window - now.Sub(rl.stamps[0])
		rl.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// evict drops timestamps older than the window. Caller holds the mutex.
func (rl *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(rl.stamps) && !rl.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		rl.stamps = append(rl.stamps[:0], rl.stamps[i:]...)
	}
}

// Pending reports how many timestamps currently occupy the window.
func (rl *RateLimiter) Pending() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.evict(time.Now())
	return len(rl.stamps)
}
