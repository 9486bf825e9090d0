// Package ratelimit spaces out requests made to the same upstream host.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum interval between requests to each host.
// A zero interval disables limiting.
type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]time.Time
	minInterval time.Duration
}

func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l.minInterval <= 0 {
		return ctx.Err()
	}

	for {
		delay := l.reserve(host)
		if delay == 0 {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve records the request and returns 0 when host is free, otherwise
// the time left until it will be.
func (l *Limiter) reserve(host string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.hosts[host]; ok {
		if remaining := l.minInterval - now.Sub(last); remaining > 0 {
			return remaining
		}
	}
	l.hosts[host] = now
	return 0
}
