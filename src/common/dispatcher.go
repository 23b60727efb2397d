package common

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Dispatcher is a single-goroutine event queue. Closures submitted with Post
// are executed one at a time, in submission order. It is the logical thread on
// which protocol dispatch, session transitions, and application callbacks run,
// so none of those need their own locking for ordering.
//
// Post never blocks, even when called from within a running closure, because
// the queue is unbounded.
type Dispatcher struct {
	mu       sync.Mutex
	queue    []func()
	wakeCh   chan struct{}
	doneCh   chan struct{}
	shutdown bool

	logger *logrus.Entry
}

// NewDispatcher creates a Dispatcher and starts its run loop.
func NewDispatcher(logger *logrus.Entry) *Dispatcher {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	d := &Dispatcher{
		wakeCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
		logger: logger,
	}

	go d.run()

	return d
}

// Post enqueues f. It returns false if the dispatcher has been closed, in
// which case f is never executed.
func (d *Dispatcher) Post(f func()) bool {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, f)
	d.mu.Unlock()

	select {
	case d.wakeCh <- struct{}{}:
	default:
	}

	return true
}

// Flush blocks until every closure posted before the call has run. It must not
// be called from the dispatcher goroutine.
func (d *Dispatcher) Flush() {
	done := make(chan struct{})
	if !d.Post(func() { close(done) }) {
		return
	}
	<-done
}

// Close stops the run loop after the closures already queued have executed.
// Subsequent calls to Post are ignored.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return
	}
	d.shutdown = true
	d.mu.Unlock()

	close(d.doneCh)
}

func (d *Dispatcher) run() {
	for {
		for {
			f, ok := d.next()
			if !ok {
				break
			}
			d.execute(f)
		}

		select {
		case <-d.wakeCh:
		case <-d.doneCh:
			// drain what was accepted before Close
			for {
				f, ok := d.next()
				if !ok {
					return
				}
				d.execute(f)
			}
		}
	}
}

func (d *Dispatcher) next() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return nil, false
	}

	f := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]

	return f, true
}

// execute runs f and turns a panic into an error log. A misbehaving handler
// must not take the whole session down with it.
func (d *Dispatcher) execute(f func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", fmt.Sprint(r)).Error("Recovered from panic in dispatched handler")
		}
	}()

	f()
}
