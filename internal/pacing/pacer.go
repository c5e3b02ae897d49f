package pacing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/JakeFAU/prospector/internal/clock/system"
	"github.com/JakeFAU/prospector/internal/metrics"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer enforces a fixed delay plus random jitter between consecutive
// operations. The first Wait returns immediately, so N operations incur
// N-1 delays.
type Pacer struct {
	scope    string
	base     time.Duration
	jitter   time.Duration
	sleep    SleepFunc
	jitterFn func(max time.Duration) time.Duration

	mu      sync.Mutex
	started bool
	penalty int
}

// Option customizes a Pacer.
type Option func(*Pacer)

// WithSleep overrides the sleep function (tests use a recorder).
func WithSleep(fn SleepFunc) Option {
	return func(p *Pacer) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithJitterFunc overrides the jitter source.
func WithJitterFunc(fn func(max time.Duration) time.Duration) Option {
	return func(p *Pacer) {
		if fn != nil {
			p.jitterFn = fn
		}
	}
}

// NewPacer builds a Pacer labeled scope for metrics.
func NewPacer(scope string, base, jitter time.Duration, opts ...Option) *Pacer {
	p := &Pacer{
		scope:    scope,
		base:     max(base, 0),
		jitter:   max(jitter, 0),
		sleep:    system.New().Sleep,
		jitterFn: randomJitter,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Penalize doubles the next delay. Repeated calls before a Wait do not stack.
func (p *Pacer) Penalize() {
	p.mu.Lock()
	p.penalty = 1
	p.mu.Unlock()
}

// Wait sleeps for the configured delay unless this is the first call.
// It returns the delay that was applied.
func (p *Pacer) Wait(ctx context.Context) (time.Duration, error) {
	p.mu.Lock()
	first := !p.started
	p.started = true
	penalty := p.penalty
	p.penalty = 0
	p.mu.Unlock()

	if first {
		return 0, nil
	}
	delay := p.base
	if p.jitter > 0 {
		delay += p.jitterFn(p.jitter)
	}
	delay <<= penalty
	if delay <= 0 {
		return 0, nil
	}
	if err := p.sleep(ctx, delay); err != nil {
		return 0, err
	}
	metrics.ObserveRateLimitDelay(p.scope, delay)
	return delay, nil
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit + 1)
}
