// Package ratelimit implements the fixed-window request limiter backed by
// the kv store, so every process instance shares the same counters.
//
// The read-then-write increment is deliberately approximate: two concurrent
// requests can both observe count n and both write n+1, letting a burst
// overshoot the threshold by a few requests. Windows are short and the
// thresholds are coarse, so the simplicity is worth more than the precision.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/logging"
)

// PrefixRateLimit is the store prefix for window counters.
const PrefixRateLimit = "rate_limit"

// Limit categories.
const (
	Global = "global"
	API    = "api"
	Login  = "login"
	Search = "search"
)

// Limit is one category's window configuration.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits mirrors the site's traffic classes.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		Global: {Max: 60, Window: time.Minute},
		API:    {Max: 30, Window: time.Minute},
		Login:  {Max: 5, Window: 15 * time.Minute},
		Search: {Max: 20, Window: time.Minute},
	}
}

type counter struct {
	Count   int   `json:"count"`
	ResetAt int64 `json:"resetAt"`
}

type Limiter struct {
	store  kv.Store
	limits map[string]Limit
	log    logging.Logger
	now    func() time.Time
}

func NewLimiter(store kv.Store, limits map[string]Limit, log logging.Logger) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{store: store, limits: limits, log: log, now: time.Now}
}

// NewLimiterWithClock injects the clock; used by tests.
func NewLimiterWithClock(store kv.Store, limits map[string]Limit, log logging.Logger, now func() time.Time) *Limiter {
	l := NewLimiter(store, limits, log)
	l.now = now
	return l
}

// Allow reports whether the client may proceed in the given category.
// Unknown categories fall back to the global limit. Store failures fail open
// with a warning; dropping traffic because the store hiccuped is worse than
// letting a window slip.
func (l *Limiter) Allow(ctx context.Context, clientID, category string) (bool, error) {
	limit, ok := l.limits[category]
	if !ok {
		category, limit = Global, l.limits[Global]
	}

	key := kv.K(PrefixRateLimit, category, clientID)
	now := l.now().UnixMilli()

	var c counter
	err := kv.GetJSON(ctx, l.store, key, &c)
	if err != nil && !kv.IsNotFound(err) {
		l.log.Warn(ctx, "rate limit read failed, allowing request", "category", category, "error", err)
		return true, nil
	}

	if kv.IsNotFound(err) || now > c.ResetAt {
		fresh := counter{Count: 1, ResetAt: now + limit.Window.Milliseconds()}
		if err := kv.PutJSON(ctx, l.store, key, fresh, kv.WithTTL(limit.Window)); err != nil {
			return true, fmt.Errorf("rate limit %s/%s: %w", category, clientID, err)
		}
		return true, nil
	}

	if c.Count >= limit.Max {
		// denied requests do not extend the window
		return false, nil
	}

	c.Count++
	if err := kv.PutJSON(ctx, l.store, key, c, kv.WithTTL(limit.Window)); err != nil {
		return true, fmt.Errorf("rate limit %s/%s: %w", category, clientID, err)
	}
	return true, nil
}
