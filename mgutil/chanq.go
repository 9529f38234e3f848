package mgutil

import (
	"sync"
)

// ChanQ is a bounded queue that keeps only the newest values.
type ChanQ[T any] struct {
	c      chan T
	mu     sync.Mutex
	closed bool
}

// Put puts v into the queue.
// It removes the oldest value if no space is available.
func (q *ChanQ[T]) Put(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	for {
		select {
		case q.c <- v:
			return
		case _, open := <-q.c:
			if !open {
				return
			}
		}
	}
}

// C returns a channel on which values are sent
func (q *ChanQ[T]) C() <-chan T {
	return q.c
}

// Close closes the queue and the channel returned by C().
// closing a closed queue has no effect.
func (q *ChanQ[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.c)
}

// NewChanQ creates a new ChanQ
// if cap is less than 1, it panics
func NewChanQ[T any](cap int) *ChanQ[T] {
	if cap < 1 {
		panic("ChanQ cap must be greater than, or equal to, one")
	}
	return &ChanQ[T]{c: make(chan T, cap)}
}
