// Package ratelimiter provides per-session submission limiting so one noisy
// table cannot flood the action queues for everyone else.
package ratelimiter

import (
	"sync"

	"golang.org/x/time/rate"
)

// SessionLimiters holds one token bucket per session, created lazily on
// first use. Burst is set equal to the rate so no extra burst capacity is
// allowed beyond the configured per-second maximum.
type SessionLimiters struct {
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// New creates a SessionLimiters with ratePerSec submissions per second per
// session.
func New(ratePerSec int) *SessionLimiters {
	if ratePerSec < 1 {
		ratePerSec = 1
	}
	return &SessionLimiters{
		rate:     rate.Limit(ratePerSec),
		burst:    ratePerSec,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the session may submit now. Unlike a blocking Wait,
// submissions over the limit are refused immediately: the player gets an
// error instead of a silently queued request.
func (sl *SessionLimiters) Allow(sessionID string) bool {
	return sl.limiter(sessionID).Allow()
}

// Forget drops a session's limiter once the session ends.
func (sl *SessionLimiters) Forget(sessionID string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	delete(sl.limiters, sessionID)
}

func (sl *SessionLimiters) limiter(sessionID string) *rate.Limiter {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	l, ok := sl.limiters[sessionID]
	if !ok {
		l = rate.NewLimiter(sl.rate, sl.burst)
		sl.limiters[sessionID] = l
	}
	return l
}
