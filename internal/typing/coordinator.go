package typing

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultIdle is how long after the last keystroke typing is considered stopped.
const DefaultIdle = time.Second

// Coordinator turns a stream of keystroke notifications into at most one
// start signal and one stop signal per typing burst. A burst starts on the
// first keystroke and stops after idle without keystrokes, or when stopped
// explicitly.
type Coordinator struct {
	clock clockwork.Clock
	idle  time.Duration
	emit  func(typing bool)
	exec  func(func())

	mu     sync.Mutex
	active bool
	timer  clockwork.Timer
	token  uint64
}

// New creates a Coordinator. emit receives start (true) and stop (false)
// signals. exec runs the idle expiry; nil runs it on the timer goroutine.
func New(clock clockwork.Clock, idle time.Duration, emit func(bool), exec func(func())) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if idle <= 0 {
		idle = DefaultIdle
	}
	if exec == nil {
		exec = func(f func()) { f() }
	}
	return &Coordinator{clock: clock, idle: idle, emit: emit, exec: exec}
}

// Update reports the current input state: true while the user is typing
// (the input is non-empty), false when the input was cleared.
func (c *Coordinator) Update(typing bool) {
	if !typing {
		c.Stop()
		return
	}

	c.mu.Lock()
	start := !c.active
	c.active = true
	c.armLocked()
	c.mu.Unlock()

	if start {
		c.emit(true)
	}
}

// Stop ends the current burst, if any, and emits a stop signal.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	stop := c.active
	c.active = false
	c.disarmLocked()
	c.mu.Unlock()

	if stop {
		c.emit(false)
	}
}

// Active reports whether a burst is in progress.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Coordinator) armLocked() {
	c.disarmLocked()
	tok := c.token
	c.timer = c.clock.AfterFunc(c.idle, func() {
		c.exec(func() { c.expire(tok) })
	})
}

func (c *Coordinator) disarmLocked() {
	c.token++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// expire stops the burst armed with tok, unless it was re-armed or stopped since.
func (c *Coordinator) expire(tok uint64) {
	c.mu.Lock()
	if tok != c.token || !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.timer = nil
	c.mu.Unlock()

	c.emit(false)
}
