package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter for model requests
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	minInterval time.Duration

	mutex       sync.Mutex
	requests    []time.Time
	lastRequest time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxRequests int, window time.Duration, minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make([]time.Time, 0, maxRequests),
		minInterval: minInterval,
	}
}

// PerMinute creates a limiter allowing n requests per minute
func PerMinute(n int) *RateLimiter {
	return NewRateLimiter(n, time.Minute, 0)
}

// Allow checks if a request should be allowed and returns wait time if not
func (rl *RateLimiter) Allow() (bool, time.Duration) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()

	if !rl.lastRequest.IsZero() {
		if since := now.Sub(rl.lastRequest); since < rl.minInterval {
			return false, rl.minInterval - since
		}
	}

	rl.cleanupOldRequests(now)

	if len(rl.requests) >= rl.maxRequests {
		if wait := rl.window - now.Sub(rl.requests[0]); wait > 0 {
			return false, wait
		}
	}

	rl.requests = append(rl.requests, now)
	rl.lastRequest = now
	return true, 0
}

// Wait blocks until a request is allowed or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		allowed, waitTime := rl.Allow()
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// InWindow returns the number of requests in the current window
func (rl *RateLimiter) InWindow() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.cleanupOldRequests(time.Now())
	return len(rl.requests)
}

func (rl *RateLimiter) cleanupOldRequests(now time.Time) {
	cutoff := now.Add(-rl.window)

	start := 0
	for i, requestTime := range rl.requests {
		if requestTime.After(cutoff) {
			start = i
			break
		}
		start = i + 1
	}

	if start > 0 {
		rl.requests = rl.requests[start:]
	}
}
