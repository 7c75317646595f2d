package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"auth-session-service/internal/http/response"
	"auth-session-service/internal/observability"
)

// RateLimiter throttles credential-guessing on the auth routes with a fixed
// window per client IP. State is process-local; each replica enforces its own
// window.
type RateLimiter struct {
	limit  int
	window time.Duration
	scope  string

	mu      sync.Mutex
	windows map[string]*rateWindow
	sweepAt time.Time
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration, scope string) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		scope:   scope,
		windows: make(map[string]*rateWindow),
		sweepAt: time.Now().Add(window),
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			remaining, resetAt, allowed := rl.take(clientIP(r), time.Now())
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
			if !allowed {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "deny")
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(time.Until(resetAt).Seconds()))))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			observability.RecordRateLimitDecision(r.Context(), rl.scope, "allow")
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) take(key string, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.sweepAt) {
		for k, w := range rl.windows {
			if now.After(w.resetAt) {
				delete(rl.windows, k)
			}
		}
		rl.sweepAt = now.Add(rl.window)
	}

	w, ok := rl.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(rl.window)}
		rl.windows[key] = w
	}
	if w.count >= rl.limit {
		return 0, w.resetAt, false
	}
	w.count++
	return rl.limit - w.count, w.resetAt, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
