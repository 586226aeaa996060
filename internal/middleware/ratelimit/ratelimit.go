// Package ratelimit caps the number of requests a single client may send per
// minute using a fixed window per IP.
package ratelimit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	window    = time.Minute
	idleAfter = 10 * time.Minute
)

type Config struct {
	RequestsPerMinute int
	// how often idle clients are swept
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 60, CleanupInterval: 5 * time.Minute}
}

// Limiter counts requests per client in one-minute windows.
type Limiter struct {
	limit int
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*clientWindow

	rejected atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
}

type clientWindow struct {
	start time.Time
	seen  time.Time
	count int
}

// NewLimiter starts a limiter with a background sweep of idle clients.
// Call Stop to end it.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	l := &Limiter{
		limit:   cfg.RequestsPerMinute,
		now:     time.Now,
		windows: map[string]*clientWindow{},
		done:    make(chan struct{}),
	}
	go l.sweep(cfg.CleanupInterval)
	return l
}

// Allow reports whether client is still within its per-minute budget.
func (l *Limiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[client]
	if w == nil || now.Sub(w.start) >= window {
		l.windows[client] = &clientWindow{start: now, seen: now, count: 1}
		return true
	}
	w.count++
	w.seen = now
	if w.count <= l.limit {
		return true
	}
	l.rejected.Add(1)
	return false
}

func (l *Limiter) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.cleanupStaleEntries()
		}
	}
}

func (l *Limiter) cleanupStaleEntries() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleAfter)
	for client, w := range l.windows {
		if w.seen.Before(cutoff) {
			delete(l.windows, client)
		}
	}
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

type Metrics struct {
	TotalHits   int64 // rejected requests
	ClientCount int64
}

func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   l.rejected.Load(),
		ClientCount: int64(l.ActiveClients()),
	}
}

// Middleware limits requests whose method is listed in methods; an empty
// list limits every request. onLimit writes the rejection, a plain 429 when nil.
func (l *Limiter) Middleware(clientOf func(*http.Request) string, onLimit http.HandlerFunc, methods ...string) func(http.Handler) http.Handler {
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	limited := map[string]bool{}
	for _, m := range methods {
		limited[m] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if (len(limited) == 0 || limited[r.Method]) && !l.Allow(clientOf(r)) {
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
