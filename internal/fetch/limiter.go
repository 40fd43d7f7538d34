package fetch

import (
	"sync"
	"time"
)

// RateLimiter spaces outbound requests so neither the ERP nor a vendor API
// sees more than the configured requests per second.
type RateLimiter struct {
	mu            sync.Mutex
	nextAllowedAt time.Time
	interval      time.Duration
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{
		interval: time.Second / time.Duration(requestsPerSecond),
	}
}

// WaitTurn blocks until this caller's slot comes up. The next slot is
// reserved under the lock; the sleep happens outside it.
func (r *RateLimiter) WaitTurn() {
	r.mu.Lock()
	now := time.Now()
	scheduled := r.nextAllowedAt
	if scheduled.Before(now) {
		scheduled = now
	}
	r.nextAllowedAt = scheduled.Add(r.interval)
	r.mu.Unlock()

	time.Sleep(time.Until(scheduled))
}
