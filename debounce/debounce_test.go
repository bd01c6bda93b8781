package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBurstFiresOnce(t *testing.T) {
	var n atomic.Int32
	d := New(40*time.Millisecond, func() { n.Add(1) })
	for range 5 {
		d.Trigger()
		time.Sleep(10 * time.Millisecond)
	}
	if got := n.Load(); got != 0 {
		t.Fatalf("fired during burst: %d", got)
	}
	time.Sleep(100 * time.Millisecond)
	if got := n.Load(); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
	if d.Pending() {
		t.Fatal("still pending after firing")
	}
}

func TestFlush(t *testing.T) {
	var n atomic.Int32
	d := New(time.Hour, func() { n.Add(1) })
	if d.Flush() {
		t.Fatal("Flush with nothing pending reported true")
	}
	d.Trigger()
	if !d.Flush() {
		t.Fatal("Flush did not find the pending call")
	}
	if n.Load() != 1 {
		t.Fatalf("n = %d", n.Load())
	}
	if d.Flush() {
		t.Fatal("second Flush ran again")
	}
}

func TestStop(t *testing.T) {
	var n atomic.Int32
	d := New(20*time.Millisecond, func() { n.Add(1) })
	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(60 * time.Millisecond)
	if got := n.Load(); got != 0 {
		t.Fatalf("stopped debouncer fired %d times", got)
	}
}

func TestSupersededTimerDoesNotFire(t *testing.T) {
	var n atomic.Int32
	d := New(time.Hour, func() { n.Add(1) })
	d.Trigger()
	d.mu.Lock()
	stale := d.gen
	d.mu.Unlock()
	d.Trigger()

	// A timer whose Stop lost the race still calls fire with its old
	// generation.
	d.fire(stale)
	if got := n.Load(); got != 0 {
		t.Fatalf("stale generation fired")
	}
	d.Stop()
}

func TestCancelKeepsDebouncerUsable(t *testing.T) {
	var n atomic.Int32
	d := New(20*time.Millisecond, func() { n.Add(1) })
	d.Trigger()
	d.Cancel()
	if d.Pending() {
		t.Fatal("pending after Cancel")
	}
	time.Sleep(50 * time.Millisecond)
	if n.Load() != 0 {
		t.Fatal("cancelled call fired")
	}
	d.Trigger()
	if !d.Flush() || n.Load() != 1 {
		t.Fatalf("trigger after Cancel: n = %d", n.Load())
	}
}
