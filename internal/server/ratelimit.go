package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// actorLimiter hands out one token bucket per authenticated actor, falling
// back to the remote address for anonymous routes.
type actorLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdleTTL = 10 * time.Minute

func newActorLimiter(cfg RateLimitConfig) *actorLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &actorLimiter{cfg: cfg, buckets: map[string]*bucket{}}
}

func (l *actorLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.buckets[key] = b
		if len(l.buckets) > 1024 {
			l.sweep(now)
		}
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *actorLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.buckets, k)
		}
	}
}

// middleware must run after authentication so the principal is known.
func (l *actorLimiter) middleware(next http.Handler) http.Handler {
	if l == nil || l.cfg.RPS <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "addr:" + remoteHost(r)
		if p, ok := principalFromContext(r.Context()); ok && p.ActorID != "" {
			key = "actor:" + p.ActorID
		}
		if !l.allow(key, time.Now()) {
			w.Header().Set("Retry-After", "1")
			respondStatusError(w, newAPIError(http.StatusTooManyRequests, "rate_limited", "too many requests", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
