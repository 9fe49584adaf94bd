// Package ratelimit throttles outbound calls per upstream host.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerSecond float64 // <= 0 disables limiting
	BurstSize         int
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond: 20,
		BurstSize:         40,
	}
}

// HostLimiter keeps one token bucket per hostname (www.dropbox.com, drive.google.com, ...).
type HostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

// NewHostLimiter creates a limiter. A nil config uses DefaultConfig.
func NewHostLimiter(cfg *Config) *HostLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	b := cfg.BurstSize
	if b < 1 {
		b = 1
	}
	return &HostLimiter{
		m: make(map[string]*rate.Limiter),
		r: r,
		b: b,
	}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.r, hl.b)
	hl.m[host] = lim
	return lim
}

// WaitURL blocks until the host of raw may be called, or ctx is done.
// Unparseable URLs share a single fallback bucket.
func (hl *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	if hl == nil {
		return ctx.Err()
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return hl.limiterFor("_").Wait(ctx)
	}
	return hl.limiterFor(strings.ToLower(u.Hostname())).Wait(ctx)
}

// Hosts returns the number of hosts seen so far.
func (hl *HostLimiter) Hosts() int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.m)
}
