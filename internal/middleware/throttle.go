package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"snapreport/pkg/utils"
)

const (
	DefaultRequests = 20 // steady refill per window
	BurstSize       = 50

	VisitorTTL      = 5 * time.Minute
	CleanupInterval = 3 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle is a coarse per-IP token bucket in front of every route. The
// per-route fixed windows live in internal/ratelimit.
type Throttle struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	enabled  bool
}

// NewThrottle allows requests per window with the given burst. Zero values
// fall back to the defaults.
func NewThrottle(enabled bool, requests int, window time.Duration, burst int) *Throttle {
	if window <= 0 {
		window = time.Second
	}
	if requests <= 0 {
		requests = DefaultRequests
	}
	if burst <= 0 {
		burst = BurstSize
	}
	return &Throttle{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(requests) / window.Seconds()),
		burst:    burst,
		enabled:  enabled,
	}
}

// StartCleanup drops idle visitors until ctx is cancelled.
func (t *Throttle) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cleanup(time.Now())
		}
	}
}

func (t *Throttle) cleanup(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, v := range t.visitors {
		if now.Sub(v.lastSeen) > VisitorTTL {
			delete(t.visitors, ip)
		}
	}
}

func (t *Throttle) visitor(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Middleware rejects callers that exhausted their bucket with 429.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.enabled || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if !t.visitor(utils.GetRealIP(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			utils.WriteError(w, http.StatusTooManyRequests, utils.ErrRequestRateLimitExceeded,
				"Too many requests. Please wait a moment.")
			return
		}

		next.ServeHTTP(w, r)
	})
}
