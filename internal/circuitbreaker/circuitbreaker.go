// Package circuitbreaker guards the snapshot provider: after repeated
// failures the circuit opens and calls fail fast until a cooldown elapses,
// then a limited number of probes decide whether to close again.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrOpen is returned when the circuit rejects a call without running it.
var ErrOpen = errors.New("circuit open")

// State is the circuit position.
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
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker tuning. Zero values fall back to defaults.
type Config struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold half-open probe successes close it again.
	SuccessThreshold int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// OnStateChange is invoked outside the breaker lock on every transition.
	OnStateChange func(from, to State)
	// Clock defaults to real time; tests inject a fake.
	Clock clockwork.Clock
}

// Breaker tracks consecutive outcomes and gates calls by state.
type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	probeHits     int
	openedAt      time.Time
	failLimit     int
	probeLimit    int
	cooldown      time.Duration
	clock         clockwork.Clock
	onStateChange func(from, to State)
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Breaker{
		state:         StateClosed,
		failLimit:     cfg.FailureThreshold,
		probeLimit:    cfg.SuccessThreshold,
		cooldown:      cfg.Cooldown,
		clock:         cfg.Clock,
		onStateChange: cfg.OnStateChange,
	}
}

// Do runs fn when the circuit allows it. An open circuit returns ErrOpen
// until the cooldown elapses, then admits probe calls in half-open state.
func (b *Breaker) Do(fn func() error) error {
	if notify, ok := b.admit(); !ok {
		return ErrOpen
	} else if notify != nil {
		notify()
	}

	err := fn()
	if notify := b.record(err); notify != nil {
		notify()
	}
	return err
}

// State returns the current circuit position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// admit decides whether a call may proceed. The returned func, when non-nil,
// fires the state-change hook and must be called after the lock is released.
func (b *Breaker) admit() (func(), bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return nil, true
	}
	if b.clock.Since(b.openedAt) < b.cooldown {
		return nil, false
	}
	return b.transition(StateHalfOpen), true
}

func (b *Breaker) record(err error) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.failLimit {
			b.openedAt = b.clock.Now()
			return b.transition(StateOpen)
		}
		return nil
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.probeHits++
		if b.probeHits >= b.probeLimit {
			return b.transition(StateClosed)
		}
	}
	return nil
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	b.failures = 0
	b.probeHits = 0
	if b.onStateChange == nil || from == to {
		return nil
	}
	return func() { b.onStateChange(from, to) }
}
