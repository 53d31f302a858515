// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a sliding-window per-minute request budget for one
// provider client. It has two paths: Acquire (preemptive, before a request)
// and Backoff (reactive, after a rate-limit response). Waits are never
// surfaced as errors; only context cancellation aborts a wait.
type RateLimiter struct {
	mu        sync.Mutex
	perWindow int
	window    time.Duration
	times     []time.Time

	stats RateLimiterStats

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// RateLimiterStats is a point-in-time snapshot of limiter activity.
type RateLimiterStats struct {
	TotalRequests         int64
	PreemptiveWaits       int64
	PreemptiveWaitSeconds float64
	ReactiveWaits         int64
	ReactiveWaitSeconds   float64
	LastWait              time.Time
	LastWaitSeconds       float64
}

// NewRateLimiter creates a limiter allowing perMinute requests per sliding
// 60-second window.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perWindow: perMinute,
		window:    time.Minute,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Acquire blocks until a request slot is free, then records the request.
// It returns an error only when ctx is cancelled during the wait.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.times) < l.perWindow {
			l.times = append(l.times, now)
			l.stats.TotalRequests++
			l.mu.Unlock()
			return nil
		}
		// Window is full: wait until the oldest timestamp leaves the window.
		wait := l.times[0].Add(l.window).Sub(now)
		if wait < 0 {
			wait = 0
		}
		l.stats.PreemptiveWaits++
		l.stats.PreemptiveWaitSeconds += wait.Seconds()
		l.stats.LastWait = now
		l.stats.LastWaitSeconds = wait.Seconds()
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Backoff records a reactive rate-limit event and waits out the hint.
// When the server gave no Retry-After, fallback is used.
func (l *RateLimiter) Backoff(ctx context.Context, retryAfter, fallback time.Duration) error {
	wait := retryAfter
	if wait <= 0 {
		wait = fallback
	}
	l.mu.Lock()
	l.stats.ReactiveWaits++
	l.stats.ReactiveWaitSeconds += wait.Seconds()
	l.stats.LastWait = l.now()
	l.stats.LastWaitSeconds = wait.Seconds()
	l.mu.Unlock()

	return l.sleep(ctx, wait)
}

// Stats returns a consistent snapshot of limiter statistics.
func (l *RateLimiter) Stats() RateLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// prune drops timestamps older than the window. Caller holds l.mu.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.times) && !l.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.times = append(l.times[:0], l.times[i:]...)
	}
}
