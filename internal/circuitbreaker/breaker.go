package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker guards one upstream route. Consecutive transport failures
// open it; after the cooldown a single probe request decides whether
// it closes again. Upstream responses of any status count as success:
// a 500 from a living service is the service answering.
type Breaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	threshold       int
	cooldown        time.Duration
	openedAt        time.Time
	probing         bool
	now             func() time.Time
	onStateChange   func(from, to State)
	totalRejected   atomic.Int64
	totalFailures   atomic.Int64
	totalSuccesses  atomic.Int64
	totalTransition atomic.Int64
}

// New creates a breaker. Zero values fall back to a threshold of 5
// failures and a 30 second cooldown.
func New(threshold int, cooldown time.Duration, onStateChange func(from, to State)) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		state:         StateClosed,
		threshold:     threshold,
		cooldown:      cooldown,
		now:           time.Now,
		onStateChange: onStateChange,
	}
}

// Allow reports whether a request may proceed. While OPEN it rejects
// until the cooldown elapses; the first caller after that becomes the
// half-open probe and concurrent callers keep getting rejected until
// the probe resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.transition(StateHalfOpen)
			b.probing = true
			return true
		}
		b.totalRejected.Add(1)
		return false

	case StateHalfOpen:
		if !b.probing {
			b.probing = true
			return true
		}
		b.totalRejected.Add(1)
		return false
	}
	return false
}

// RecordSuccess notes that a forwarded request reached the upstream.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses.Add(1)

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probing = false
		b.failures = 0
		b.transition(StateClosed)
	}
}

// RecordFailure notes a transport-level failure (connect error or
// timeout). In HALF_OPEN a failed probe reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures.Add(1)

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.probing = false
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

// transition switches state and fires the hook. Caller holds b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.totalTransition.Add(1)
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

// State returns the current position without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot is a point-in-time view for the admin surface.
type Snapshot struct {
	State            string `json:"state"`
	ConsecutiveFails int    `json:"consecutive_failures"`
	FailureThreshold int    `json:"failure_threshold"`
	CooldownSeconds  int    `json:"cooldown_seconds"`
	TotalSuccesses   int64  `json:"total_successes"`
	TotalFailures    int64  `json:"total_failures"`
	TotalRejected    int64  `json:"total_rejected"`
	Transitions      int64  `json:"transitions"`
}

// Snapshot returns the breaker's counters and position.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		State:            b.state.String(),
		ConsecutiveFails: b.failures,
		FailureThreshold: b.threshold,
		CooldownSeconds:  int(b.cooldown / time.Second),
		TotalSuccesses:   b.totalSuccesses.Load(),
		TotalFailures:    b.totalFailures.Load(),
		TotalRejected:    b.totalRejected.Load(),
		Transitions:      b.totalTransition.Load(),
	}
}
