package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"hookguard/internal/pkg/errors"
)

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	store *sync.Map // map[string]*visitor
	limit rate.Limit
	burst int
	ttl   time.Duration
}

type visitor struct {
	limiter *rate.Limiter
	mu      sync.Mutex
	// used to evict idle keys
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per key with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 600
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		store: &sync.Map{},
		limit: rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
		ttl:   10 * time.Minute,
	}
}

// Cleanup evicts idle keys every interval until stop is closed.
func (rl *RateLimiter) Cleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.store.Range(func(key, value any) bool {
		v := value.(*visitor)
		v.mu.Lock()
		if now.Sub(v.lastSeen) > rl.ttl {
			rl.store.Delete(key)
		}
		v.mu.Unlock()
		return true
	})
}

func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()
	val, _ := rl.store.LoadOrStore(key, &visitor{
		limiter:  rate.NewLimiter(rl.limit, rl.burst),
		lastSeen: now,
	})

	v := val.(*visitor)
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Handle limits requests by client IP.
func (rl *RateLimiter) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
