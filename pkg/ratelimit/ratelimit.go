package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter is a simple fixed-window bucket keyed by client IP
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket // per-IP buckets
	max        int                // tokens per window
	per        time.Duration      // window size
	trustProxy bool               // key on X-Forwarded-For
	now        func() time.Time
}

type bucket struct {
	ts     time.Time // window start
	tokens int       // remaining tokens
}

// New creates a new IP-based limiter allowing max requests per window
func New(max int, per time.Duration, trustProxy bool) *Limiter {
	return &Limiter{buckets: map[string]*bucket{}, max: max, per: per, trustProxy: trustProxy, now: time.Now}
}

// Allow takes one token for ip, false if the window is spent
func (r *Limiter) Allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b := r.buckets[ip]
	if b == nil || now.Sub(b.ts) > r.per {
		if b == nil && len(r.buckets) >= sweepAt {
			r.sweep(now)
		}
		// Start a new window
		b = &bucket{ts: now, tokens: r.max}
		r.buckets[ip] = b
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweepAt is the bucket count that triggers dropping stale windows
const sweepAt = 4096

func (r *Limiter) sweep(now time.Time) {
	for ip, b := range r.buckets {
		if now.Sub(b.ts) > r.per {
			delete(r.buckets, ip)
		}
	}
}

// Middleware enforces the rate limit before calling the next handler
func (r *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Allow(ClientIP(req, r.trustProxy)) {
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// ClientIP returns the first X-Forwarded-For hop when trusted, else the peer address
func ClientIP(req *http.Request, trustProxy bool) string {
	if trustProxy {
		if xf := req.Header.Get("X-Forwarded-For"); xf != "" {
			first, _, _ := strings.Cut(xf, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	if ip, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		return ip
	}
	if req.RemoteAddr != "" {
		return req.RemoteAddr
	}
	return "unknown"
}
