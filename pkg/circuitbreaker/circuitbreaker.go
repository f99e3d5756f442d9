// Package circuitbreaker stops calling a dependency that keeps failing and lets a
// single probe through once the cool-down has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type Config struct {
	Name string
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe is allowed.
	Cooldown time.Duration
	// ProbeSuccesses closes a half-open circuit; any probe failure reopens it.
	ProbeSuccesses int

	// IsFailure decides which errors count against the dependency. The default
	// ignores context.Canceled, which means our side gave up.
	IsFailure func(error) bool

	// OnStateChange runs outside the lock after every transition.
	OnStateChange func(name string, from, to State)
}

type Snapshot struct {
	State               State
	ConsecutiveFailures int
	LastFailure         time.Time
	OpenUntil           time.Time
}

type Breaker struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	probing     bool
	lastFailure time.Time
	openUntil   time.Time
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.ProbeSuccesses <= 0 {
		cfg.ProbeSuccesses = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}

	return &Breaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the circuit is open. fn is never called with the lock held.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.acquire()
	if err != nil {
		return err
	}

	err = fn(ctx)
	b.release(probe, err)
	return err
}

// acquire reports whether the admitted call is the half-open probe.
func (b *Breaker) acquire() (bool, error) {
	b.mu.Lock()
	from := b.state

	if b.state == Open && !b.now().Before(b.openUntil) {
		b.state = HalfOpen
		b.successes = 0
	}

	var (
		probe bool
		err   error
	)
	switch {
	case b.state == Open:
		err = ErrCircuitOpen
	case b.state == HalfOpen && b.probing:
		err = ErrCircuitOpen
	case b.state == HalfOpen:
		b.probing = true
		probe = true
	}

	to := b.state
	b.mu.Unlock()

	b.changed(from, to)
	return probe, err
}

// release settles a call. Only the probe decides a half-open circuit; calls admitted
// while closed only move the failure streak.
func (b *Breaker) release(probe bool, err error) {
	b.mu.Lock()
	from := b.state
	if probe {
		b.probing = false
	}

	switch {
	case err == nil:
		b.failures = 0
		if probe && b.state == HalfOpen {
			b.successes++
			if b.successes >= b.cfg.ProbeSuccesses {
				b.state = Closed
			}
		}
	case b.cfg.IsFailure(err):
		b.failures++
		b.lastFailure = b.now()
		if (probe && b.state == HalfOpen) || (b.state == Closed && b.failures >= b.cfg.FailureThreshold) {
			b.trip()
		}
	}

	to := b.state
	b.mu.Unlock()

	b.changed(from, to)
}

func (b *Breaker) trip() {
	b.state = Open
	b.successes = 0
	b.openUntil = b.now().Add(b.cfg.Cooldown)
}

func (b *Breaker) changed(from, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		LastFailure:         b.lastFailure,
		OpenUntil:           b.openUntil,
	}
}
