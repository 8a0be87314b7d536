package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ClientIP resolves the address a request originated from. Behind a reverse
// proxy the first hop in X-Forwarded-For is the client; otherwise the peer
// address is authoritative.
func ClientIP(r *http.Request) string {
	if chain := r.Header.Get("X-Forwarded-For"); chain != "" {
		first, _, _ := strings.Cut(chain, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// window counts hits for one key until it resets.
type window struct {
	hits   int
	resets time.Time
}

// RateLimiter is an in-memory fixed-window limiter keyed by caller identity,
// typically the client IP.
type RateLimiter struct {
	mu     sync.Mutex
	visits map[string]*window
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{visits: make(map[string]*window)}
}

// Allow records a hit for key and reports whether it stays within limit for
// the current window. The first hit after a window lapses opens a new one.
func (rl *RateLimiter) Allow(key string, limit int, span time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w := rl.visits[key]
	if w == nil || now.After(w.resets) {
		rl.visits[key] = &window{hits: 1, resets: now.Add(span)}
		return true
	}
	w.hits++
	return w.hits <= limit
}

// Cleanup drops windows that have lapsed. Meant to run periodically so idle
// keys do not accumulate.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, w := range rl.visits {
		if now.After(w.resets) {
			delete(rl.visits, key)
		}
	}
}

// RateLimit wraps a handler, answering 429 once a caller exhausts its
// window.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, span time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(keyFunc(r), limit, span) {
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
