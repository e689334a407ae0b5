package runtimelog

import (
	"sync"
	"time"
)

// rateLimiter throttles error-log emission so a failure storm cannot flood
// stdout; mirrors the teacher's telemetry.RateLimiter.
type rateLimiter struct {
	interval time.Duration
	lastTime time.Time
	mu       sync.Mutex
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastTime) >= r.interval {
		r.lastTime = now
		return true
	}
	return false
}
