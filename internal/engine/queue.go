package engine

import "sync"

// mutationQueue is an unbounded FIFO of mutations.
//
// Enqueue is safe from any goroutine; only the Run loop dequeues. The
// signal channel lets Run wait with a context.
type mutationQueue struct {
	mu        sync.Mutex
	mutations []Mutation
	closed    bool
	signal    chan struct{} // buffered, size 1
}

func newMutationQueue() *mutationQueue {
	return &mutationQueue{
		mutations: make([]Mutation, 0, 64),
		signal:    make(chan struct{}, 1),
	}
}

// Enqueue appends m. Returns false once the queue is closed.
func (q *mutationQueue) Enqueue(m Mutation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.mutations = append(q.mutations, m)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front mutation without blocking.
func (q *mutationQueue) TryDequeue() (Mutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.mutations) == 0 {
		return Mutation{}, false
	}
	m := q.mutations[0]
	// Release the slot so attribute maps can be collected.
	q.mutations[0] = Mutation{}
	if len(q.mutations) == 1 {
		q.mutations = q.mutations[:0]
	} else {
		q.mutations = q.mutations[1:]
	}
	return m, true
}

// Wait signals that mutations may be available. The channel is closed
// when the queue is closed.
func (q *mutationQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *mutationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.mutations)
}

// Close stops further enqueues and wakes the waiter.
func (q *mutationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
