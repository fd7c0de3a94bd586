// Package resilience provides per-source request pacing and per-key circuit
// breakers for outbound fetches.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WessleyAI/dealflow/pkg/fn"
)

// State is the breaker state.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls fail fast
	StateHalfOpen              // one probe allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling through while a breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker trips after a run of consecutive failures and rejects calls until
// the cooldown elapses, then lets a single probe through.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	state     State
	failures  int
	openedAt  time.Time
	probing   bool
	now       func() time.Time
}

// NewBreaker returns a breaker that opens after threshold consecutive failures.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// current must be called with mu held.
func (b *Breaker) current() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		b.probing = false
	}
	return b.state
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.current() {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
	}
	return true
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !failed {
		b.state = StateClosed
		b.failures = 0
		b.probing = false
		return
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
		b.failures = 0
		b.probing = false
	}
}

// Guard runs f through b. A nil breaker calls f directly. Context
// cancellation is not counted as a failure.
func Guard[T any](ctx context.Context, b *Breaker, f func(context.Context) fn.Result[T]) fn.Result[T] {
	if b == nil {
		return f(ctx)
	}
	if !b.admit() {
		return fn.Err[T](ErrCircuitOpen)
	}
	r := f(ctx)
	if err := r.Error(); err != nil && ctx.Err() != nil {
		b.mu.Lock()
		b.probing = false
		b.mu.Unlock()
		return r
	}
	b.record(r.IsErr())
	return r
}

// Breakers hands out one breaker per key, created on first use.
type Breakers struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	m         map[string]*Breaker
}

// NewBreakers returns a keyed breaker set. A threshold of zero or less
// disables breaking: For returns nil and Guard calls straight through.
func NewBreakers(threshold int, cooldown time.Duration) *Breakers {
	return &Breakers{threshold: threshold, cooldown: cooldown, m: make(map[string]*Breaker)}
}

// For returns the breaker for key.
func (s *Breakers) For(key string) *Breaker {
	if s == nil || s.threshold <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[key]
	if !ok {
		b = NewBreaker(s.threshold, s.cooldown)
		s.m[key] = b
	}
	return b
}
