package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFiresOnce(t *testing.T) {
	var fired atomic.Int32
	tm := New(func() { fired.Add(1) })
	tm.Start(10 * time.Millisecond)

	time.Sleep(60 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Fatalf("fired = %d, want 1", got)
	}
}

func TestTimerStartIsNoopWhileRunning(t *testing.T) {
	var fired atomic.Int32
	tm := New(func() { fired.Add(1) })
	tm.Start(20 * time.Millisecond)
	tm.Start(20 * time.Millisecond) // should not rearm or panic

	time.Sleep(60 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Fatalf("fired = %d, want 1", got)
	}
}

func TestTimerStopPreventsFire(t *testing.T) {
	var fired atomic.Int32
	tm := New(func() { fired.Add(1) })
	tm.Start(20 * time.Millisecond)
	tm.Stop()

	time.Sleep(60 * time.Millisecond)

	if got := fired.Load(); got != 0 {
		t.Fatalf("fired = %d, want 0", got)
	}
	if tm.Running() {
		t.Fatal("Running() = true after Stop")
	}
}

func TestTimerRestartCancelsPriorFire(t *testing.T) {
	var fired atomic.Int32
	tm := New(func() { fired.Add(1) })
	tm.Start(15 * time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	tm.Restart(40 * time.Millisecond) // cancels the near-due first fire

	time.Sleep(20 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("fired too early: %d", got)
	}

	time.Sleep(40 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired = %d, want 1 after restart interval elapsed", got)
	}
}
