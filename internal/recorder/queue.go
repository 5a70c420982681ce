package recorder

import (
	"sync"
)

// serialQueue runs submitted functions one at a time in submission order.
// A worker goroutine exists only while work is pending.
type serialQueue struct {
	mu      sync.Mutex
	tasks   []func()
	running bool
}

// Async schedules f and returns immediately.
func (q *serialQueue) Async(f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, f)
	if !q.running {
		q.running = true
		go q.drain()
	}
}

// Sync schedules f and waits for it to run. It must not be called from a
// function running on the same queue.
func (q *serialQueue) Sync(f func()) {
	done := make(chan struct{})
	q.Async(func() {
		defer close(done)
		f()
	})
	<-done
}

func (q *serialQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		f := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		f()
	}
}
