package status

import (
	"testing"

	"github.com/matheus3301/wachat/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Offline {
		t.Errorf("initial state = %s, want OFFLINE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Offline, Connected},
		{Offline, Reconnecting},
		{Connected, Reconnecting},
		{Connected, Offline},
		{Reconnecting, Connected},
		{Reconnecting, Offline},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestSelfTransitionRejected(t *testing.T) {
	for _, s := range []State{Offline, Connected, Reconnecting} {
		m := NewMachine(nil)
		walkTo(t, m, s)
		if err := m.Transition(s); err == nil {
			t.Errorf("Transition(%s -> %s) should fail", s, s)
		}
		if err := m.Ensure(s); err != nil {
			t.Errorf("Ensure(%s) from %s: %v", s, s, err)
		}
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connected); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.ConnStateChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.ConnStateChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Offline || change.To != Connected {
		t.Errorf("change = %v -> %v, want OFFLINE -> CONNECTED", change.From, change.To)
	}
	if change.Recovered() {
		t.Error("initial connect reported as recovery")
	}
}

// TestDropAndRecoverCycle walks the reconnect loop:
// CONNECTED -> RECONNECTING -> CONNECTED
func TestDropAndRecoverCycle(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	m := NewMachine(b)
	for _, s := range []State{Connected, Reconnecting, Connected} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}

	var last StatusChange
	for range 3 {
		last = (<-ch).Payload.(StatusChange)
	}
	if !last.Recovered() {
		t.Errorf("last change %v -> %v not reported as recovery", last.From, last.To)
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Offline:      {},
		Connected:    {Connected},
		Reconnecting: {Reconnecting},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
