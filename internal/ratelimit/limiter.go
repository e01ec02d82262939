// Package ratelimit provides per-provider request throttling and
// failure isolation for the streaming import runner and the price
// enrichment engine, both of which call out to rate-limited third-party
// APIs.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type providerEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ProviderLimiter hands out one token-bucket limiter per provider name,
// cleaning up entries that haven't been touched in ttl so a long-lived
// process doesn't accumulate limiters for providers no longer in use.
type ProviderLimiter struct {
	mu          sync.Mutex
	entries     map[string]*providerEntry
	lastCleanup time.Time
	rps         rate.Limit
	burst       int
	ttl         time.Duration
}

func NewProviderLimiter(rps float64, burst int, ttl time.Duration) *ProviderLimiter {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ProviderLimiter{
		entries: make(map[string]*providerEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     ttl,
	}
}

// Allow reports whether a request against providerName may proceed
// right now, without blocking.
func (l *ProviderLimiter) Allow(providerName string) bool {
	return l.entryFor(providerName).limiter.Allow()
}

func (l *ProviderLimiter) entryFor(providerName string) *providerEntry {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastCleanup.IsZero() || now.Sub(l.lastCleanup) > time.Minute {
		for k, v := range l.entries {
			if now.Sub(v.lastSeen) > l.ttl {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	ent := l.entries[providerName]
	if ent == nil {
		ent = &providerEntry{limiter: rate.NewLimiter(l.rps, l.burst), lastSeen: now}
		l.entries[providerName] = ent
	} else {
		ent.lastSeen = now
	}
	return ent
}

// Limiter returns the raw rate.Limiter for providerName, for callers
// that need blocking Wait(ctx) semantics.
func (l *ProviderLimiter) Limiter(providerName string) *rate.Limiter {
	return l.entryFor(providerName).limiter
}
