// Package ratelimit throttles outbound page fetches per site with token
// buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
	"github.com/JakeFAU/bookmarks/internal/metrics"
)

// DefaultMaxSites bounds the number of per-site buckets kept in memory.
const DefaultMaxSites = 1024

// Limiter manages per-site token buckets.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*siteLimiter
	defaultRate  rate.Limit
	defaultBurst int
	maxSites     int
	now          func() time.Time
}

type siteLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Config holds rate limiter configuration. A non-positive RPS disables
// throttling.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// MaxSites caps tracked sites. Zero means DefaultMaxSites.
	MaxSites int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	maxSites := cfg.MaxSites
	if maxSites <= 0 {
		maxSites = DefaultMaxSites
	}
	return &Limiter{
		limiters:     make(map[string]*siteLimiter),
		defaultRate:  r,
		defaultBurst: burst,
		maxSites:     maxSites,
		now:          time.Now,
	}
}

// Wait blocks until a token is available for the URL's site. It returns an
// error without consuming a token when ctx would expire first.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	site := metrics.SanitizeSite(rawURL)
	limiter := l.forSite(site)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(site, d)
	}
	return nil
}

// Sites reports how many per-site buckets are currently tracked.
func (l *Limiter) Sites() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) forSite(site string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	entry, ok := l.limiters[site]
	if !ok {
		if len(l.limiters) >= l.maxSites {
			l.evictLocked(now)
		}
		entry = &siteLimiter{limiter: rate.NewLimiter(l.defaultRate, l.defaultBurst)}
		l.limiters[site] = entry
	}
	entry.lastUsed = now
	return entry.limiter
}

// evictLocked drops buckets that have refilled completely, since a fresh
// bucket behaves identically. If none has, the least recently used goes.
func (l *Limiter) evictLocked(now time.Time) {
	var (
		oldestSite string
		oldest     time.Time
	)
	removed := false
	for site, entry := range l.limiters {
		if entry.limiter.TokensAt(now) >= float64(l.defaultBurst) {
			delete(l.limiters, site)
			removed = true
			continue
		}
		if oldestSite == "" || entry.lastUsed.Before(oldest) {
			oldestSite, oldest = site, entry.lastUsed
		}
	}
	if !removed && oldestSite != "" {
		delete(l.limiters, oldestSite)
	}
}

// Fetcher waits on a Limiter before delegating to the wrapped fetcher.
type Fetcher struct {
	next    bookmark.Fetcher
	limiter *Limiter
	maxWait time.Duration
	logger  *zap.Logger
}

// Wrap returns next throttled by limiter. A fetch whose token would not be
// available within maxWait fails immediately; zero leaves the wait bounded
// only by the caller's context.
func Wrap(next bookmark.Fetcher, limiter *Limiter, maxWait time.Duration, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{next: next, limiter: limiter, maxWait: maxWait, logger: logger}
}

// Fetch fails soft when the wait would exceed maxWait or ctx.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (bookmark.Page, bool) {
	waitCtx := ctx
	if f.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, f.maxWait)
		defer cancel()
	}
	if err := f.limiter.Wait(waitCtx, rawURL); err != nil {
		f.logger.Warn("fetch throttled", zap.String("url", rawURL), zap.Error(err))
		return bookmark.Page{}, false
	}
	return f.next.Fetch(ctx, rawURL)
}
