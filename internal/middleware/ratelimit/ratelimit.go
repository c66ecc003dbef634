package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	window  = time.Minute
	idleTTL = 10 * time.Minute
)

// Limiter counts requests per client in fixed one-minute windows.
type Limiter struct {
	limit     int
	skipSafe  bool
	sweepStep time.Duration
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	opened time.Time
	seen   time.Time
	used   int
}

type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	// SkipSafeMethods exempts GET, HEAD and OPTIONS so dashboard polling
	// never spends the budget.
	SkipSafeMethods bool
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 60, CleanupInterval: 5 * time.Minute, SkipSafeMethods: true}
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RetryAfter is the whole number of seconds until the window reopens.
func (d Decision) RetryAfter(now time.Time) int {
	return int(math.Ceil(d.Reset.Sub(now).Seconds()))
}

func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	l := &Limiter{
		limit:     cfg.RequestsPerMinute,
		skipSafe:  cfg.SkipSafeMethods,
		sweepStep: cfg.CleanupInterval,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		stop:      make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Take spends one request from client's budget.
func (l *Limiter) Take(client string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.buckets[client]
	if b == nil || now.Sub(b.opened) >= window {
		b = &bucket{opened: now}
		l.buckets[client] = b
	}
	b.seen = now
	b.used++

	return Decision{
		Allowed:   b.used <= l.limit,
		Limit:     l.limit,
		Remaining: max(l.limit-b.used, 0),
		Reset:     b.opened.Add(window),
	}
}

func (l *Limiter) sweepLoop() {
	t := time.NewTicker(l.sweepStep)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep forgets clients idle for longer than idleTTL and returns how many
// were dropped.
func (l *Limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idleTTL)
	dropped := 0
	for client, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, client)
			dropped++
		}
	}
	return dropped
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware limits unsafe requests per client. Rejections go to onLimit,
// or get a plain 429 when onLimit is nil.
func (l *Limiter) Middleware(clientOf func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				if l.skipSafe {
					next.ServeHTTP(w, r)
					return
				}
			}

			d := l.Take(clientOf(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Retry-After", strconv.Itoa(d.RetryAfter(l.now())))
			if onLimit == nil {
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			onLimit(w, r)
		})
	}
}
