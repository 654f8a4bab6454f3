package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/wachat/internal/bus"
)

// State represents the push channel connectivity state.
type State string

const (
	Offline      State = "OFFLINE"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Offline:      {Connected, Reconnecting},
	Connected:    {Reconnecting, Offline},
	Reconnecting: {Connected, Offline},
}

// Machine tracks and enforces connectivity state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Offline state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Offline,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind: bus.ConnStateChanged,
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// Ensure moves to state to unless already there.
func (m *Machine) Ensure(to State) error {
	if m.Current() == to {
		return nil
	}
	return m.Transition(to)
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}

// Recovered reports whether the change restores a link that had been lost.
func (c StatusChange) Recovered() bool {
	return c.From == Reconnecting && c.To == Connected
}
