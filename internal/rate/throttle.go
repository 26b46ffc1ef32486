// Package rate provides the scheduling primitives that bound how often
// presence updates and role lookups reach the remote stores.
package rate

import (
	"sync"
	"time"
)

// Throttle invokes fn immediately when at least delay has elapsed since the
// previous invocation, and otherwise coalesces calls into a single trailing
// invocation carrying the most recent argument.
type Throttle[T any] struct {
	mu      sync.Mutex
	fn      func(T)
	delay   time.Duration
	last    time.Time
	timer   *time.Timer
	pending T
	waiting bool
}

func NewThrottle[T any](fn func(T), delay time.Duration) *Throttle[T] {
	return &Throttle[T]{fn: fn, delay: delay}
}

func (t *Throttle[T]) Call(arg T) {
	t.mu.Lock()
	now := time.Now()
	if elapsed := now.Sub(t.last); elapsed >= t.delay {
		t.last = now
		fn := t.fn
		t.mu.Unlock()
		fn(arg)
		return
	}
	t.pending = arg
	if !t.waiting {
		t.waiting = true
		remaining := t.delay - now.Sub(t.last)
		t.timer = time.AfterFunc(remaining, t.fire)
	}
	t.mu.Unlock()
}

func (t *Throttle[T]) fire() {
	t.mu.Lock()
	if !t.waiting {
		t.mu.Unlock()
		return
	}
	t.waiting = false
	t.last = time.Now()
	arg := t.pending
	var zero T
	t.pending = zero
	fn := t.fn
	t.mu.Unlock()
	fn(arg)
}

// Cancel drops any pending trailing invocation.
func (t *Throttle[T]) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.waiting = false
}
