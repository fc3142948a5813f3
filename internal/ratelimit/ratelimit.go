// Package ratelimit throttles outbound SMTP probes ahead of the racer
// so a burst of checks against the same freemail provider doesn't get
// the worker's source IP rate-limited or blocklisted. Global plus
// per-domain token buckets, with conservative defaults for the large
// freemail providers, built as a reusable component the orchestrator
// calls before racing instead of package-level state consulted from a
// job loop.
package ratelimit

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Manager holds a global limiter plus per-domain limiters, created
// lazily for domains with no explicit entry.
type Manager struct {
	global         *rate.Limiter
	domainLimiters map[string]*rate.Limiter
	defaultRate    rate.Limit
	defaultBurst   int
	mu             sync.RWMutex
}

// NewManager builds a Manager with a global rate/burst and conservative
// hand-picked limits for the large freemail providers (gmail 2/s,
// outlook/hotmail/live 1/s, yahoo 1/s), plus a 5/s default for
// everything else.
func NewManager(globalRate rate.Limit, globalBurst int) *Manager {
	m := &Manager{
		global:         rate.NewLimiter(globalRate, globalBurst),
		domainLimiters: make(map[string]*rate.Limiter),
		defaultRate:    5,
		defaultBurst:   5,
	}

	m.domainLimiters["gmail.com"] = rate.NewLimiter(2, 2)
	m.domainLimiters["googlemail.com"] = rate.NewLimiter(2, 2)
	m.domainLimiters["outlook.com"] = rate.NewLimiter(1, 1)
	m.domainLimiters["hotmail.com"] = rate.NewLimiter(1, 1)
	m.domainLimiters["live.com"] = rate.NewLimiter(1, 1)
	m.domainLimiters["yahoo.com"] = rate.NewLimiter(1, 1)

	return m
}

// WaitGlobal blocks until only the global token bucket admits one
// probe, ignoring any per-domain limit. Callers gating dequeue of a job
// whose domain isn't known yet (e.g. before parsing the address) use
// this instead of Wait.
func (m *Manager) WaitGlobal(ctx context.Context) error {
	return m.global.Wait(ctx)
}

// Wait blocks until both the global and the per-domain token bucket
// admit one probe, or ctx is done.
func (m *Manager) Wait(ctx context.Context, domain string) error {
	domain = strings.ToLower(domain)

	if err := m.global.Wait(ctx); err != nil {
		return err
	}

	limiter := m.limiterFor(domain)
	return limiter.Wait(ctx)
}

func (m *Manager) limiterFor(domain string) *rate.Limiter {
	domain = strings.ToLower(domain)

	m.mu.RLock()
	limiter, ok := m.domainLimiters[domain]
	m.mu.RUnlock()
	if ok {
		return limiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if limiter, ok = m.domainLimiters[domain]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(m.defaultRate, m.defaultBurst)
	m.domainLimiters[domain] = limiter
	return limiter
}
