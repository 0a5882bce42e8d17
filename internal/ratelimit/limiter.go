// Package ratelimit implements per-caller, per-route fixed-window limits.
//
// The Limiter interface is what handlers see. Memory is the single-process
// backing; a multi-instance deployment needs a shared counter store behind
// the same interface.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"snapreport/internal/config"
	"snapreport/pkg/logger"
)

// ErrRateLimited is returned by callers that turn a rejected Check into an
// error.
var ErrRateLimited = errors.New("ratelimit: rate limit exceeded")

// Route keys used by the HTTP surface.
const (
	RouteReportsCreate  = "reports:create"
	RouteCommentsCreate = "comments:create"
	RouteUpvote         = "reports:upvote"
)

// Rule is the budget for one route: MaxRequests per Window.
type Rule struct {
	MaxRequests int
	Window      time.Duration
}

// Result is the outcome of one Check. Remaining is -1 for routes without a
// rule. ResetAt is zero in that case too.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether a caller may hit a route now. Every call to Check
// counts as an attempt.
type Limiter interface {
	Check(callerKey, routeKey string) Result
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Memory is an in-process fixed-window Limiter. One mutex guards the bucket
// map so two requests at the boundary cannot both be admitted.
type Memory struct {
	mu      sync.Mutex
	rules   map[string]Rule
	buckets map[string]*bucket

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewMemory returns a limiter enforcing rules keyed by route.
func NewMemory(rules map[string]Rule) *Memory {
	r := make(map[string]Rule, len(rules))
	for k, v := range rules {
		r[k] = v
	}
	return &Memory{rules: r, buckets: make(map[string]*bucket)}
}

// RulesFromConfig maps the configured route budgets onto route keys.
func RulesFromConfig(c config.RouteLimits) map[string]Rule {
	return map[string]Rule{
		RouteReportsCreate:  {MaxRequests: c.ReportsCreate.MaxRequests, Window: config.Duration(c.ReportsCreate.Window, 15*time.Minute)},
		RouteCommentsCreate: {MaxRequests: c.CommentsCreate.MaxRequests, Window: config.Duration(c.CommentsCreate.Window, 5*time.Minute)},
		RouteUpvote:         {MaxRequests: c.Upvote.MaxRequests, Window: config.Duration(c.Upvote.Window, time.Minute)},
	}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Check counts one attempt for (callerKey, routeKey).
//
// A missing bucket, or one whose window end has passed, restarts at count 1.
// Otherwise a bucket already at MaxRequests rejects and anything below it is
// incremented.
func (m *Memory) Check(callerKey, routeKey string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[routeKey]
	if !ok || rule.MaxRequests <= 0 {
		return Result{Allowed: true, Remaining: -1}
	}

	now := m.now()
	key := routeKey + "|" + callerKey

	b, ok := m.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(rule.Window)}
		m.buckets[key] = b
		return Result{Allowed: true, Remaining: rule.MaxRequests - 1, ResetAt: b.resetAt}
	}

	if b.count >= rule.MaxRequests {
		return Result{Allowed: false, Remaining: 0, ResetAt: b.resetAt}
	}

	b.count++
	return Result{Allowed: true, Remaining: rule.MaxRequests - b.count, ResetAt: b.resetAt}
}

// Sweep drops buckets whose window has ended and returns how many went.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, b := range m.buckets {
		if now.After(b.resetAt) {
			delete(m.buckets, k)
			n++
		}
	}
	return n
}

// Len returns the number of live buckets.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// StartSweeper sweeps every interval until ctx is cancelled.
func (m *Memory) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.LogDebug("ratelimit: swept %d expired buckets", n)
			}
		}
	}
}
