package record

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("recorder is closed")

// queue is an unbounded FIFO. push never blocks; pop blocks until an item
// is available or the queue is closed and empty.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Snapshot
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(s Snapshot) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, s)
	q.cond.Signal()
	return nil
}

// pop returns false once the queue is closed and every item before the
// close has been handed out.
func (q *queue) pop() (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Snapshot{}, false
	}
	s := q.items[0]
	q.items[0] = Snapshot{} // release frames
	q.items = q.items[1:]
	return s, true
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
