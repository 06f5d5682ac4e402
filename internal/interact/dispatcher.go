package interact

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Dispatcher routes inbound chat events to goroutines waiting on them.
type Dispatcher struct {
	waiters *xsync.MapOf[uint64, waiter]
	seq     atomic.Uint64
}

type waiter interface {
	offer(ev any) bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{waiters: xsync.NewMapOf[uint64, waiter]()}
}

// Deliver hands ev to the first pending waiter that accepts it and reports
// whether one did.
func (d *Dispatcher) Deliver(ev any) bool {
	delivered := false
	d.waiters.Range(func(_ uint64, w waiter) bool {
		if w.offer(ev) {
			delivered = true
			return false
		}
		return true
	})
	return delivered
}

// Pending returns the number of registered waiters.
func (d *Dispatcher) Pending() int {
	return d.waiters.Size()
}

// Outcome is either an event value or a timeout marker.
type Outcome[T any] struct {
	Value    T
	TimedOut bool
}

// Listener receives events of type T accepted by its match function until
// Close is called.
type Listener[T any] struct {
	d     *Dispatcher
	id    uint64
	match func(T) bool
	ch    chan T
}

// Listen registers a waiter. Callers must Close it.
func Listen[T any](d *Dispatcher, match func(T) bool) *Listener[T] {
	l := &Listener[T]{
		d:     d,
		id:    d.seq.Add(1),
		match: match,
		ch:    make(chan T, 1),
	}
	d.waiters.Store(l.id, l)
	return l
}

func (l *Listener[T]) offer(ev any) bool {
	v, ok := ev.(T)
	if !ok || !l.match(v) {
		return false
	}
	select {
	case l.ch <- v:
		return true
	default:
		return false
	}
}

// Wait blocks until a matching event arrives, the timeout passes, or ctx ends.
func (l *Listener[T]) Wait(ctx context.Context, timeout time.Duration) (Outcome[T], error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-l.ch:
		return Outcome[T]{Value: v}, nil
	case <-timer.C:
		return Outcome[T]{TimedOut: true}, nil
	case <-ctx.Done():
		return Outcome[T]{}, ctx.Err()
	}
}

func (l *Listener[T]) Close() {
	l.d.waiters.Delete(l.id)
}
