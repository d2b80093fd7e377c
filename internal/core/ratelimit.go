package core

import "time"

// rateLimiter is a fixed-window counter. It is owned by a single command pump
// and needs no locking.
type rateLimiter struct {
	limit       int
	window      time.Duration
	counter     int
	windowStart time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{limit: limit, window: window}
}

func (r *rateLimiter) allow(now time.Time) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= r.window {
		r.windowStart = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
