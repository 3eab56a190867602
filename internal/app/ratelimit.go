package app

import (
	"context"
	"time"

	"fitbite/internal/domain"

	"github.com/rs/zerolog/log"
)

// RateDecision is the outcome of one rate-limit check.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter allows at most Max requests per key in each fixed window.
type RateLimiter struct {
	store  domain.CounterStore
	max    int
	window time.Duration
	prefix string
}

// NewRateLimiter creates a limiter. prefix namespaces its keys so several
// limiters can share one store.
func NewRateLimiter(store domain.CounterStore, prefix string, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{store: store, max: max, window: window, prefix: prefix}
}

// Allow counts one request for key. A counter store failure lets the
// request through.
func (l *RateLimiter) Allow(ctx context.Context, key string) RateDecision {
	count, reset, err := l.store.Incr(ctx, l.prefix+":"+key, l.window)
	if err != nil {
		log.Warn().Err(err).Str("limiter", l.prefix).Msg("rate limit store unavailable")
		return RateDecision{Allowed: true, Remaining: l.max}
	}
	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{Allowed: count <= int64(l.max), Remaining: remaining, ResetAt: reset}
}

// Max returns the per-window request limit.
func (l *RateLimiter) Max() int { return l.max }
