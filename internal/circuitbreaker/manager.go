package circuitbreaker

import (
	"sync"
	"time"
)

// Manager holds one breaker per route so a failing upstream never
// trips another route's circuit.
type Manager struct {
	mu        sync.RWMutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
	onChange  func(route string, from, to State)
}

// NewManager creates a per-route breaker registry. onChange fires on
// every state transition; pass nil to disable.
func NewManager(threshold int, cooldown time.Duration, onChange func(route string, from, to State)) *Manager {
	return &Manager{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
		onChange:  onChange,
	}
}

// For returns the breaker for routeID, creating it on first use.
func (m *Manager) For(routeID string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[routeID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.breakers[routeID]; ok {
		return b
	}
	var hook func(from, to State)
	if m.onChange != nil {
		id := routeID
		hook = func(from, to State) { m.onChange(id, from, to) }
	}
	b = New(m.threshold, m.cooldown, hook)
	m.breakers[routeID] = b
	return b
}

// Snapshots returns the state of every breaker created so far.
func (m *Manager) Snapshots() map[string]Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Snapshot, len(m.breakers))
	for id, b := range m.breakers {
		out[id] = b.Snapshot()
	}
	return out
}
