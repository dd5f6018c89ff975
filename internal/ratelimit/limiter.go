// Package ratelimit implements fixed-window request admission per client and
// route class. The Limiter itself is stateless; counters live in a Store
// (database table or Redis) so every process sees the same windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RouteClass groups endpoints that share a budget.
type RouteClass string

const (
	// API covers general JSON endpoints such as search.
	API RouteClass = "api"
	// Auth covers login, logout, signup and session lookups.
	Auth RouteClass = "auth"
)

// Policy is the budget for one route class: at most Max requests per Window.
type Policy struct {
	Window time.Duration
	Max    int64
}

// Decision reports the outcome of Admit.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// Store counts hits in fixed windows.
//
// Hit records one request for (client, class) at now and returns the hit
// count of the current window including this one, plus the window start.
// A window that began at or before now-window is replaced by a fresh one.
type Store interface {
	Hit(ctx context.Context, client string, class RouteClass, window time.Duration, now time.Time) (hits int64, windowStart time.Time, err error)
}

// ErrUnknownClass is returned by Admit for a class without a policy.
var ErrUnknownClass = errors.New("ratelimit: unknown route class")

// Limiter admits or rejects requests according to per-class policies.
type Limiter struct {
	store    Store
	policies map[RouteClass]Policy
	now      func() time.Time
}

// New constructs a Limiter over store.
func New(store Store, policies map[RouteClass]Policy) *Limiter {
	p := make(map[RouteClass]Policy, len(policies))
	for k, v := range policies {
		p[k] = v
	}
	return &Limiter{store: store, policies: p, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Policy returns the configured policy for class.
func (l *Limiter) Policy(class RouteClass) (Policy, bool) {
	p, ok := l.policies[class]
	return p, ok
}

// Admit records a request for clientKey under class and decides whether it
// may proceed. The request whose hit count equals Max is the last one
// allowed in a window.
//
// On store failure Admit returns an allowing decision together with the
// error; callers log it and let the request through.
func (l *Limiter) Admit(ctx context.Context, clientKey string, class RouteClass) (Decision, error) {
	p, ok := l.policies[class]
	if !ok {
		return Decision{Allowed: true}, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	now := l.now().UTC()

	hits, start, err := l.store.Hit(ctx, clientKey, class, p.Window, now)
	if err != nil {
		return Decision{Allowed: true, Limit: p.Max, Remaining: p.Max}, fmt.Errorf("rate limit store: %w", err)
	}

	reset := start.Add(p.Window).Sub(now)
	if reset < 0 {
		reset = 0
	}
	d := Decision{
		Allowed:    hits <= p.Max,
		Limit:      p.Max,
		Remaining:  p.Max - hits,
		ResetAfter: reset,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = reset
	}
	return d, nil
}
