// Package resilience provides the failure-handling primitives the dubbing
// pipeline uses around remote providers: a three-state circuit breaker and
// a context-aware fallback cascade that drives the translation
// region-by-model grid and synthesis provider failover.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when a breaker rejects a call because it is in
// the open state and the cooldown has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards all calls.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen

	// BreakerHalfOpen lets a limited probe budget through; the probes decide
	// whether the breaker closes again or re-opens.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields get defaults.
type BreakerConfig struct {
	// MaxFailures is how many consecutive failures trip the breaker.
	// Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration

	// ProbeBudget is how many half-open probe calls may run before the
	// breaker decides. Default: 3.
	ProbeBudget int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.ProbeBudget <= 0 {
		c.ProbeBudget = 3
	}
	return c
}

// Breaker is a classic three-state circuit breaker
// (closed -> open -> half-open). Callers either use [Breaker.Do], or pair
// [Breaker.Allow] with [Breaker.Record] when the protected call does not
// fit a closure.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     BreakerState
	failures  int       // consecutive failures while closed
	openedAt  time.Time // last failure that kept the breaker open
	probes    int       // probe calls started while half-open
	probeFail int       // probe calls that failed
}

// NewBreaker creates a closed [Breaker] with cfg (defaults applied).
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Allow reports whether a call may proceed. In the open state it returns
// ErrBreakerOpen until the cooldown elapses, at which point the breaker
// moves to half-open and starts admitting probes. Every admitted call must
// be followed by exactly one [Breaker.Record].
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		b.probeFail = 0

	case BreakerHalfOpen:
		if b.probes >= b.cfg.ProbeBudget {
			return ErrBreakerOpen
		}
	}

	if b.state == BreakerHalfOpen {
		b.probes++
	}
	return nil
}

// Record updates breaker accounting for a call previously admitted by
// [Breaker.Allow].
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.openedAt = time.Now()
		if b.state == BreakerHalfOpen {
			// Any probe failure re-opens immediately.
			b.probeFail++
			b.state = BreakerOpen
			b.failures = b.cfg.MaxFailures
			return
		}
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.state = BreakerOpen
		}
		return
	}

	if b.state == BreakerHalfOpen {
		if b.probes-b.probeFail >= b.cfg.ProbeBudget {
			b.state = BreakerClosed
			b.failures = 0
			b.probes = 0
			b.probeFail = 0
		}
		return
	}
	b.failures = 0
}

// Do runs fn under the breaker: rejected calls return ErrBreakerOpen
// without invoking fn, admitted calls are recorded.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

// State returns the breaker's current state. An open breaker whose
// cooldown has elapsed reports half-open; the actual transition happens on
// the next Allow.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.probeFail = 0
}
