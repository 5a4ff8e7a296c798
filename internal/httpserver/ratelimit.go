// apps/go-server/internal/httpserver/ratelimit.go
//
// Per-user token buckets for hole writes. Each edit dispatches a remote
// upsert, so a runaway client is throttled before it reaches the store.

package httpserver

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/robalobadob/golftrack/apps/go-server/internal/identity"
)

// maxLimiters bounds the limiter map; it is reset wholesale when exceeded.
const maxLimiters = 10000

type writeLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newWriteLimiter(perSecond float64, burst int) *writeLimiter {
	return &writeLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *writeLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLimiters {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Handler rejects requests over budget with 429. Keyed by user id, falling
// back to the remote address.
func (l *writeLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if u, ok := identity.FromContext(r.Context()); ok {
			key = u.ID
		}
		if !l.get(key).Allow() {
			log.Warn().Str("key", key).Str("path", r.URL.Path).Msg("hole write rate limited")
			http.Error(w, `{"error":"rate_limited"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
