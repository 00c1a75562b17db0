package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum interval between requests to the same host.
// Each host gets its own token bucket; unknown hosts are admitted
// immediately on first contact.
type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]*rate.Limiter
	minInterval time.Duration
}

// New creates a limiter with the given minimum per-host interval.
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]*rate.Limiter),
		minInterval: minInterval,
	}
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.hosts[host]; ok {
		return lim
	}

	limit := rate.Inf
	if l.minInterval > 0 {
		limit = rate.Every(l.minInterval)
	}
	lim := rate.NewLimiter(limit, 1)
	l.hosts[host] = lim
	return lim
}

// Allow reports whether a request to host may proceed right now.
func (l *Limiter) Allow(host string) bool {
	return l.limiterFor(host).Allow()
}

// Wait blocks until a request to host may proceed.
func (l *Limiter) Wait(host string) {
	l.limiterFor(host).Wait(context.Background())
}

// WaitContext blocks until a request to host may proceed or ctx is done.
func (l *Limiter) WaitContext(ctx context.Context, host string) error {
	return l.limiterFor(host).Wait(ctx)
}

// Reset forgets the rate state for one host.
func (l *Limiter) Reset(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hosts, host)
}

// ResetAll forgets the rate state for every host.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts = make(map[string]*rate.Limiter)
}
