package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	limiterAllowed = prometheus.NewCounter(prometheus.CounterOpts{Name: "ratelimit_allowed_total"})
	limiterDenied  = prometheus.NewCounter(prometheus.CounterOpts{Name: "ratelimit_denied_total"})
)

// Key identifies one accounting bucket: who is calling and which billed
// action they want to perform.
type Key struct {
	Caller string
	Action string
}

// Decision is what callers get back before issuing a paid external call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Check(ctx context.Context, key Key) (Decision, error)
}

// WindowLimiter is a fixed-window counter map safe under concurrent access
// from every in-flight recipient. The clock is injected so tests can drive
// window rollover deterministically.
type WindowLimiter struct {
	mu      sync.Mutex
	windows map[Key]*window
	size    time.Duration
	limits  map[string]int
	def     int
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

type WindowOption func(*WindowLimiter)

func WithClock(now func() time.Time) WindowOption {
	return func(l *WindowLimiter) { l.now = now }
}

// WithActionLimit overrides the per-window allowance for one action.
func WithActionLimit(action string, limit int) WindowOption {
	return func(l *WindowLimiter) { l.limits[action] = limit }
}

func NewWindowLimiter(size time.Duration, defaultLimit int, opts ...WindowOption) *WindowLimiter {
	l := &WindowLimiter{
		windows: make(map[Key]*window),
		size:    size,
		limits:  make(map[string]int),
		def:     defaultLimit,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *WindowLimiter) Check(ctx context.Context, key Key) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.size {
		w = &window{start: now}
		l.windows[key] = w
	}

	limit := l.def
	if v, ok := l.limits[key.Action]; ok {
		limit = v
	}

	resetAt := w.start.Add(l.size)
	if w.count >= limit {
		limiterDenied.Inc()
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	w.count++
	limiterAllowed.Inc()
	return Decision{Allowed: true, Remaining: limit - w.count, ResetAt: resetAt}, nil
}
