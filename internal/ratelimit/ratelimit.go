package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter enforces sliding-window budgets, used to throttle job
// submissions at the dispatcher
type RateLimiter struct {
	perMinute int
	perHour   int

	mu   sync.Mutex
	hits []time.Time // within the last hour, oldest first
	now  func() time.Time
}

// NewRateLimiter creates a limiter; a zero limit disables that window
func NewRateLimiter(perMinute, perHour int) *RateLimiter {
	return &RateLimiter{perMinute: perMinute, perHour: perHour, now: time.Now}
}

// Allow records a request and reports whether it fits every window
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)

	if rl.perMinute > 0 && rl.countSince(now.Add(-time.Minute)) >= rl.perMinute {
		return false
	}
	if rl.perHour > 0 && len(rl.hits) >= rl.perHour {
		return false
	}
	rl.hits = append(rl.hits, now)
	return true
}

// Stats contains rate limiter statistics
type Stats struct {
	RequestsLastMinute  int `json:"requests_last_minute"`
	RequestsLastHour    int `json:"requests_last_hour"`
	LimitPerMinute      int `json:"limit_per_minute"`
	LimitPerHour        int `json:"limit_per_hour"`
	RemainingThisMinute int `json:"remaining_this_minute"`
	RemainingThisHour   int `json:"remaining_this_hour"`
}

// GetStats returns current rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)
	minute := rl.countSince(now.Add(-time.Minute))
	return Stats{
		RequestsLastMinute:  minute,
		RequestsLastHour:    len(rl.hits),
		LimitPerMinute:      rl.perMinute,
		LimitPerHour:        rl.perHour,
		RemainingThisMinute: remaining(rl.perMinute, minute),
		RemainingThisHour:   remaining(rl.perHour, len(rl.hits)),
	}
}

// cleanup drops hits older than an hour
func (rl *RateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(rl.hits) && !rl.hits[i].After(cutoff) {
		i++
	}
	rl.hits = rl.hits[i:]
}

func (rl *RateLimiter) countSince(cutoff time.Time) int {
	n := 0
	for j := len(rl.hits) - 1; j >= 0 && rl.hits[j].After(cutoff); j-- {
		n++
	}
	return n
}

func remaining(limit, used int) int {
	if limit <= 0 || used >= limit {
		return 0
	}
	return limit - used
}
