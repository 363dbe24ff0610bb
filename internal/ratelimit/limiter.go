package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Category names used across the middleware and the security policies.
const (
	CategoryAPI  = "api"
	CategoryAuth = "auth"
	CategoryBulk = "bulk"
)

// Limit defines a fixed-window threshold for one category.
type Limit struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
}

// DefaultLimits returns the built-in per-category limits.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		CategoryAPI:  {Threshold: 100, Window: time.Minute},
		CategoryAuth: {Threshold: 5, Window: time.Minute},
		CategoryBulk: {Threshold: 10, Window: time.Minute},
	}
}

type bucket struct {
	count       int
	windowStart time.Time
}

// Limiter is a keyed fixed-window rate limiter. Window rollover is lazy:
// computed from elapsed time at check time, never by a background timer.
// Buckets live in an LRU cache so key cardinality stays bounded; evicting a
// cold bucket merely restarts its window, which only ever under-counts.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	buckets *lru.Cache[string, *bucket]
	now     func() time.Time
}

// New creates a Limiter with the given per-category limits. Unknown
// categories fall back to the "api" limit.
func New(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	cache, _ := lru.New[string, *bucket](16384)
	return &Limiter{
		limits:  limits,
		buckets: cache,
		now:     time.Now,
	}
}

func (l *Limiter) limitFor(category string) Limit {
	if lim, ok := l.limits[category]; ok {
		return lim
	}
	return l.limits[CategoryAPI]
}

// Allow records one request for (key, category) and reports whether it is
// within the limit. The request at count == threshold is the last one
// allowed; the next is denied until the window rolls over.
func (l *Limiter) Allow(key, category string) bool {
	lim := l.limitFor(category)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bk := key + "|" + category
	b, ok := l.buckets.Get(bk)
	if !ok || now.Sub(b.windowStart) >= lim.Window {
		b = &bucket{windowStart: now}
		l.buckets.Add(bk, b)
	}
	b.count++
	return b.count <= lim.Threshold
}

// Remaining returns how many requests are left in the current window for
// (key, category) without consuming one.
func (l *Limiter) Remaining(key, category string) int {
	lim := l.limitFor(category)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Get(key + "|" + category)
	if !ok || l.now().Sub(b.windowStart) >= lim.Window {
		return lim.Threshold
	}
	if rem := lim.Threshold - b.count; rem > 0 {
		return rem
	}
	return 0
}

// Reset clears the bucket for (key, category).
func (l *Limiter) Reset(key, category string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets.Remove(key + "|" + category)
}
