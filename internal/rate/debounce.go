package rate

import (
	"sync"
	"time"
)

// Debounce delays invocation until delay has passed with no further calls;
// the most recent argument wins.
type Debounce[T any] struct {
	mu      sync.Mutex
	fn      func(T)
	delay   time.Duration
	timer   *time.Timer
	pending T
	waiting bool
}

func NewDebounce[T any](fn func(T), delay time.Duration) *Debounce[T] {
	return &Debounce[T]{fn: fn, delay: delay}
}

func (d *Debounce[T]) Call(arg T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = arg
	if d.timer != nil {
		d.timer.Stop()
	}
	d.waiting = true
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debounce[T]) fire() {
	d.mu.Lock()
	if !d.waiting {
		d.mu.Unlock()
		return
	}
	d.waiting = false
	arg := d.pending
	var zero T
	d.pending = zero
	fn := d.fn
	d.mu.Unlock()
	fn(arg)
}

// Cancel drops the pending invocation, if any.
func (d *Debounce[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.waiting = false
}
