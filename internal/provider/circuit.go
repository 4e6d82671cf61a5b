package provider

import (
	"sync"
	"time"
)

// BreakerState is the availability state of one provider.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"    // requests flow
	BreakerOpen     BreakerState = "open"      // requests blocked
	BreakerHalfOpen BreakerState = "half_open" // one probe allowed
)

// Breaker is a per-provider circuit breaker. After failureThreshold
// consecutive failures it opens; once probeInterval elapses it half-opens
// and lets a single probe decide whether to close again.
type Breaker struct {
	mu sync.Mutex

	state       BreakerState
	failures    int
	lastFailure time.Time
	openedAt    time.Time

	failureThreshold int
	probeInterval    time.Duration
}

func NewBreaker(failureThreshold int, probeInterval time.Duration) *Breaker {
	return &Breaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		probeInterval:    probeInterval,
	}
}

// locked returns the effective state, promoting open to half-open once the
// probe interval has elapsed. Callers must hold mu.
func (b *Breaker) locked() BreakerState {
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.probeInterval {
		b.state = BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked()
}

// Allow reports whether a request may go through right now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked() != BreakerOpen
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
	}
	b.failures = 0
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.failureThreshold {
			b.state = BreakerOpen
			b.openedAt = time.Now()
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}

// HealthTracker holds one breaker per provider name.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	failureThreshold int
	probeInterval    time.Duration
}

func NewHealthTracker(failureThreshold int, probeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		probeInterval:    probeInterval,
	}
}

// Breaker returns the breaker for a provider, creating it on first use.
func (ht *HealthTracker) Breaker(name string) *Breaker {
	ht.mu.RLock()
	b, ok := ht.breakers[name]
	ht.mu.RUnlock()
	if ok {
		return b
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if b, ok := ht.breakers[name]; ok {
		return b
	}
	b = NewBreaker(ht.failureThreshold, ht.probeInterval)
	ht.breakers[name] = b
	return b
}

func (ht *HealthTracker) Available(name string) bool {
	return ht.Breaker(name).Allow()
}

func (ht *HealthTracker) RecordSuccess(name string) {
	ht.Breaker(name).RecordSuccess()
}

func (ht *HealthTracker) RecordFailure(name string) {
	ht.Breaker(name).RecordFailure()
}

// States reports the current state of every tracked provider.
func (ht *HealthTracker) States() map[string]BreakerState {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	out := make(map[string]BreakerState, len(ht.breakers))
	for name, b := range ht.breakers {
		out[name] = b.State()
	}
	return out
}
