// Package loop is a minimal event loop: one goroutine runs posted events and
// timer callbacks one after another, never concurrently.
//
// Code running on the loop may touch loop-owned state without locking. Other
// goroutines hand work to the loop with Post or Call.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const queueSize = 256

type Loop struct {
	events chan func()
	// deferred is only touched on the loop goroutine.
	deferred []func()

	done     chan struct{}
	stopOnce sync.Once
}

func New() *Loop {
	return &Loop{
		events: make(chan func(), queueSize),
		done:   make(chan struct{}),
	}
}

// Run executes events until ctx is done. A loop runs only once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.done) })
	for {
		select {
		case f := <-l.events:
			f()
			l.runDeferred()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues f. It returns false if the loop has stopped.
func (l *Loop) Post(f func()) bool {
	select {
	case l.events <- f:
		return true
	case <-l.done:
		return false
	}
}

// Defer queues f to run on the loop right after the current event. It must
// only be called from the loop, where it never blocks, unlike Post with a full
// queue.
func (l *Loop) Defer(f func()) {
	l.deferred = append(l.deferred, f)
}

func (l *Loop) runDeferred() {
	for len(l.deferred) > 0 {
		f := l.deferred[0]
		l.deferred[0] = nil
		l.deferred = l.deferred[1:]
		f()
	}
	l.deferred = nil
}

// Call runs f on the loop and waits for it to return. It must not be called
// from the loop itself.
func (l *Loop) Call(f func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		f()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Every runs f on the loop each period until the returned stop function is
// called. After stop returns no further call to f starts, even if a tick was
// already queued.
func (l *Loop) Every(period time.Duration, f func()) (stop func()) {
	var stopped atomic.Bool
	quit := make(chan struct{})
	t := time.NewTicker(period)

	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				l.Post(func() {
					if !stopped.Load() {
						f()
					}
				})
			case <-quit:
				return
			case <-l.done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stopped.Store(true)
			close(quit)
		})
	}
}
