// Package notify runs callbacks in order outside the locks that produced them.
package notify

import "sync"

// Queue runs queued functions one at a time in enqueue order. Functions
// enqueued while a drain is in progress, including from inside a running
// function, are run by that drain after the current one returns.
//
// Callers enqueue while holding the lock that orders their mutations and
// call Drain after releasing it.
type Queue struct {
	mu       sync.Mutex
	pending  []func()
	draining bool
}

// Enqueue appends fn.
func (q *Queue) Enqueue(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, fn)
}

// Drain runs pending functions until none are left. It returns at once when
// another call is already draining.
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	finished := false
	defer func() {
		if !finished {
			// a function panicked; let the next Drain take over
			q.mu.Lock()
			q.draining = false
			q.mu.Unlock()
		}
	}()

	for {
		fn, ok := q.next()
		if !ok {
			finished = true
			return
		}
		fn()
	}
}

func (q *Queue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		q.draining = false
		return nil, false
	}
	fn := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return fn, true
}
