// Package timer implements the one-shot cancelable Timer Service of spec
// §4.4: start/restart/stop semantics around a callback delivered on the
// reactor goroutine, with no re-entrancy (a running callback cannot
// observe its own timer as active).
package timer

import (
	"sync"
	"time"
)

// Callback is invoked when a Timer expires. It is always run on its own
// goroutine so a slow callback cannot stall the caller of Start/Stop. The
// timer is marked not-running before the callback is invoked, so a running
// callback never observes its own timer as active (no re-entrancy). Timer
// does not serialize callbacks: if the timer is re-armed and fires again
// while an earlier callback is still running, both run concurrently.
type Callback func()

// Timer is a one-shot cancelable timer. The zero value is not usable; use
// New. A Timer is safe for concurrent Start/Restart/Stop calls, mirroring
// the role machine's ElectionTimer/HeartBeatTimer being driven both from
// RPC handlers and from other timer callbacks.
type Timer struct {
	mu       sync.Mutex
	callback Callback
	timer    *time.Timer
	running  bool
	gen      uint64 // incremented on every stop/restart to fence stale fires
}

// New creates a Timer bound to callback. It starts stopped.
func New(callback Callback) *Timer {
	return &Timer{callback: callback}
}

// Start arms the timer to fire once after d, if it is not already running.
// Matches asab.Timer.start(): a no-op if already running.
func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.arm(d)
}

// Restart cancels any pending fire and arms a fresh one after d.
func (t *Timer) Restart(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.arm(d)
}

// Stop cancels a pending fire, if any. Safe to call when not running.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Running reports whether the timer currently has a pending fire.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) arm(d time.Duration) {
	t.running = true
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(d, func() { t.fire(gen) })
}

func (t *Timer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.running = false
	t.gen++
}

// fire runs the callback iff this invocation's generation is still the
// current one — i.e. the timer was not stopped or restarted between
// scheduling and firing. This is the fencing that gives Timer its
// no-re-entrancy guarantee: by the time the callback observes state, the
// timer that is about to call it has already marked itself not-running.
func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()
	t.callback()
}
