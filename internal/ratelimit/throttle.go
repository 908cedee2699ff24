// ABOUTME: Per-client token bucket throttle for unauthenticated endpoints
// ABOUTME: Keys golang.org/x/time/rate limiters by remote host

package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter map between sweeps.
const maxTrackedClients = 10000

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientThrottle provides per-client rate limiting
type ClientThrottle struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	logger   *slog.Logger
	done     chan struct{}
	once     sync.Once
}

// NewClientThrottle creates a throttle allowing rps requests per second with
// the given burst per client. Idle clients are forgotten after idleTTL.
func NewClientThrottle(rps float64, burst int, idleTTL time.Duration, logger *slog.Logger) *ClientThrottle {
	if logger == nil {
		logger = slog.Default()
	}
	t := &ClientThrottle{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		idleTTL:  idleTTL,
		logger:   logger.With("component", "throttle"),
		done:     make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Allow reports whether the client identified by key may proceed.
func (t *ClientThrottle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cl, ok := t.limiters[key]
	if !ok {
		if len(t.limiters) >= maxTrackedClients {
			t.sweepLocked(time.Now())
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.limiters[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

// Handler returns middleware that rejects throttled clients with 429.
func (t *ClientThrottle) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !t.Allow(key) {
			t.logger.Warn("client throttled", "client", key, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close stops the background sweeper.
func (t *ClientThrottle) Close() {
	t.once.Do(func() { close(t.done) })
}

func (t *ClientThrottle) sweepLoop() {
	interval := t.idleTTL
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case now := <-ticker.C:
			t.mu.Lock()
			t.sweepLocked(now)
			t.mu.Unlock()
		}
	}
}

// sweepLocked drops clients idle longer than idleTTL. Caller holds t.mu.
func (t *ClientThrottle) sweepLocked(now time.Time) {
	for key, cl := range t.limiters {
		if now.Sub(cl.lastSeen) > t.idleTTL {
			delete(t.limiters, key)
		}
	}
}

// clientKey identifies the caller by remote host, without the port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
