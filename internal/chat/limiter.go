// internal/chat/limiter.go

package chat

import (
    "sync"
    "time"
)

// RateLimiter is a sliding-window limiter for one connection's events
type RateLimiter struct {
    mu     sync.Mutex
    events []time.Time
    limit  int
    window time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
    return &RateLimiter{
        limit:  limit,
        window: window,
    }
}

// Allow checks if another event is allowed inside the window
func (r *RateLimiter) Allow() bool {
    r.mu.Lock()
    defer r.mu.Unlock()

    now := time.Now()

    // Drop events that have aged out of the window
    valid := r.events[:0]
    for _, t := range r.events {
        if now.Sub(t) < r.window {
            valid = append(valid, t)
        }
    }
    r.events = valid

    if len(r.events) >= r.limit {
        return false
    }

    r.events = append(r.events, now)
    return true
}
