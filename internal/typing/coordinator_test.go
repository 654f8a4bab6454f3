package typing

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestCoordinator() (*Coordinator, *clockwork.FakeClock, chan bool) {
	clock := clockwork.NewFakeClock()
	signals := make(chan bool, 16)
	c := New(clock, time.Second, func(typing bool) { signals <- typing }, nil)
	return c, clock, signals
}

func expectSignal(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("signal = %v, want %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for signal %v", want)
	}
}

func expectNoSignal(t *testing.T, ch <-chan bool) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected signal %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBurstEmitsOneStartAndOneStop(t *testing.T) {
	c, clock, signals := newTestCoordinator()

	c.Update(true)
	expectSignal(t, signals, true)

	for range 5 {
		clock.Advance(500 * time.Millisecond)
		c.Update(true)
	}
	expectNoSignal(t, signals)
	if !c.Active() {
		t.Fatal("burst ended while keystrokes kept coming")
	}

	clock.Advance(999 * time.Millisecond)
	expectNoSignal(t, signals)

	clock.Advance(time.Millisecond)
	expectSignal(t, signals, false)
	expectNoSignal(t, signals)
	if c.Active() {
		t.Error("still active after idle expiry")
	}
}

func TestClearingInputStopsImmediately(t *testing.T) {
	c, clock, signals := newTestCoordinator()

	c.Update(true)
	expectSignal(t, signals, true)

	c.Update(false)
	expectSignal(t, signals, false)

	clock.Advance(2 * time.Second)
	expectNoSignal(t, signals)
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	c, _, signals := newTestCoordinator()
	c.Stop()
	c.Update(false)
	expectNoSignal(t, signals)
}

func TestNewBurstAfterStop(t *testing.T) {
	c, clock, signals := newTestCoordinator()

	c.Update(true)
	expectSignal(t, signals, true)
	clock.Advance(time.Second)
	expectSignal(t, signals, false)

	c.Update(true)
	expectSignal(t, signals, true)
	c.Stop()
	expectSignal(t, signals, false)
}

func TestExecRoutesExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	signals := make(chan bool, 4)
	tasks := make(chan func(), 4)
	c := New(clock, time.Second, func(typing bool) { signals <- typing }, func(f func()) { tasks <- f })

	c.Update(true)
	expectSignal(t, signals, true)
	clock.Advance(time.Second)

	select {
	case f := <-tasks:
		expectNoSignal(t, signals)
		f()
	case <-time.After(time.Second):
		t.Fatal("expiry not routed through exec")
	}
	expectSignal(t, signals, false)
}

func TestStaleExpiryIgnored(t *testing.T) {
	clock := clockwork.NewFakeClock()
	signals := make(chan bool, 4)
	tasks := make(chan func(), 4)
	c := New(clock, time.Second, func(typing bool) { signals <- typing }, func(f func()) { tasks <- f })

	c.Update(true)
	expectSignal(t, signals, true)
	clock.Advance(time.Second)
	stale := <-tasks

	// A keystroke lands before the queued expiry runs.
	c.Update(true)
	stale()
	expectNoSignal(t, signals)
	if !c.Active() {
		t.Error("stale expiry ended a live burst")
	}
}
