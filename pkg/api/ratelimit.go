package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/devpulse/pipewatch/pkg/config"
)

const (
	throttleSweepInterval = 5 * time.Minute
	throttleIdleTTL       = 10 * time.Minute
)

type callerBucket struct {
	lim     *rate.Limiter
	touched time.Time
}

// throttle hands out one token bucket per caller IP. Idle buckets are
// swept so the map does not grow without bound.
type throttle struct {
	mu      sync.Mutex
	callers map[string]*callerBucket
	perSec  rate.Limit
	burst   int
}

func newThrottle(requestsPerMinute int, done <-chan struct{}) *throttle {
	t := &throttle{
		callers: make(map[string]*callerBucket),
		perSec:  rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   requestsPerMinute,
	}

	go t.sweep(done)

	return t
}

func (t *throttle) allow(caller string) bool {
	t.mu.Lock()

	b, ok := t.callers[caller]
	if !ok {
		b = &callerBucket{lim: rate.NewLimiter(t.perSec, t.burst)}
		t.callers[caller] = b
	}

	b.touched = time.Now()
	lim := b.lim

	t.mu.Unlock()

	return lim.Allow()
}

func (t *throttle) sweep(done <-chan struct{}) {
	ticker := time.NewTicker(throttleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.mu.Lock()

			for caller, b := range t.callers {
				if time.Since(b.touched) > throttleIdleTTL {
					delete(t.callers, caller)
				}
			}

			t.mu.Unlock()
		}
	}
}

// rateLimitMiddleware throttles requests per caller IP. The sweeper
// goroutine stops with the server.
func (s *server) rateLimitMiddleware(
	cfg config.RateLimitConfig,
) func(http.Handler) http.Handler {
	th := newThrottle(cfg.RequestsPerMinute, s.done)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !th.allow(clientIP(r)) {
				writeJSON(w, http.StatusTooManyRequests,
					errorResponse{"rate limit exceeded"})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
