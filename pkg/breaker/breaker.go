// Package breaker guards the Redis result cache with a circuit breaker.
// Allocation is cheap to recompute, so when the cache misbehaves repeatedly
// the service should stop talking to it for a while instead of paying the
// failure latency on every request.
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

type Breaker struct {
	mu sync.Mutex

	state        State
	failures     int
	successes    int
	probes       int
	lastFailure  time.Time
	maxFailures  int
	minSuccesses int
	cooldown     time.Duration
	maxProbes    int
}

// New returns a closed breaker that opens after maxFailures consecutive
// failures, waits cooldown, then allows up to three probe calls; minSuccesses
// consecutive probe successes close it again.
func New(maxFailures, minSuccesses int, cooldown time.Duration) *Breaker {
	return &Breaker{
		state:        StateClosed,
		maxFailures:  maxFailures,
		minSuccesses: minSuccesses,
		cooldown:     cooldown,
		maxProbes:    3,
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn under the breaker. When the circuit is open it returns ErrOpen
// without invoking fn.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.lastFailure) <= b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.probes = 0
	}

	if b.state == StateHalfOpen {
		if b.probes >= b.maxProbes {
			// Probe budget spent without closing. Re-open and restart the
			// cooldown so the next window gets a fresh budget; otherwise a
			// minSuccesses above maxProbes would latch the breaker open
			// forever.
			b.state = StateOpen
			b.lastFailure = time.Now()
			return ErrOpen
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.state = StateOpen
			b.failures = 0
		}
		return
	}

	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.minSuccesses {
			b.state = StateClosed
			b.successes = 0
			b.failures = 0
		}
		return
	}
	b.failures = 0
}

var ErrOpen = &OpenError{Message: "circuit breaker is open"}

type OpenError struct {
	Message string
}

func (e *OpenError) Error() string {
	return e.Message
}
