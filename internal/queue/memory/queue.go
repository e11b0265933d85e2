// Package memory provides an in-process backlog.
package memory

import (
	"sync"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
)

// Queue is an unbounded FIFO guarded by a mutex.
type Queue struct {
	mu    sync.Mutex
	items []crawler.Target
}

// NewQueue constructs a queue preloaded with targets.
func NewQueue(targets ...crawler.Target) *Queue {
	q := &Queue{}
	q.Enqueue(targets...)
	return q
}

// Enqueue appends targets to the back of the queue.
func (q *Queue) Enqueue(targets ...crawler.Target) {
	if len(targets) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, targets...)
	q.mu.Unlock()
}

// Dequeue pops the front target without blocking.
func (q *Queue) Dequeue() (crawler.Target, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return crawler.Target{}, false
	}
	next := q.items[0]
	q.items[0] = crawler.Target{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return next, true
}

// Len reports the number of pending targets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the pending targets, front first.
func (q *Queue) Snapshot() []crawler.Target {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]crawler.Target, len(q.items))
	copy(out, q.items)
	return out
}
