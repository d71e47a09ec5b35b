package dispatch

import "sync"

// executor runs callbacks one at a time, in post order, on its own goroutine.
type executor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newExecutor() *executor {
	e := &executor{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)

	go e.run()

	return e
}

// Post queues fn. After Close, fn runs on a goroutine of its own.
func (e *executor) Post(fn func()) {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()

		go fn()

		return
	}

	e.queue = append(e.queue, fn)
	e.cond.Signal()
	e.mu.Unlock()
}

func (e *executor) run() {
	defer close(e.done)

	for {
		e.mu.Lock()

		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}

		if len(e.queue) == 0 {
			e.mu.Unlock()

			return
		}

		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		fn()
	}
}

// Close runs everything already queued, then stops. Must not be called from a callback.
func (e *executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()

	<-e.done
}
