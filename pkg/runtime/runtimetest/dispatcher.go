package runtimetest

import (
	"sync"
	"taglogger/pkg/runtime"
)

// Dispatcher queues work and continuations until Drain runs them on the
// calling goroutine, which stands in for the supervision loop.
type Dispatcher struct {
	mu    sync.Mutex
	queue []func()
}

var _ runtime.Dispatcher = (*Dispatcher)(nil)

func (d *Dispatcher) Go(work func() error, done func(error)) {
	d.Post(func() {
		err := work()
		done(err)
	})
}

func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, fn)
}

func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Drain runs queued functions, including ones queued while draining.
func (d *Dispatcher) Drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		fn()
	}
}
