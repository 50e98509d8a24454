package kernel

import (
	"sync"
	"sync/atomic"
)

// RunQueue is a FIFO ring of ready task handles.
type RunQueue struct {
	mu   sync.Mutex
	buf  []*Task
	head int
	n    int

	// length mirrors n so spawn placement can read it without the lock.
	length atomic.Int32
}

// Push appends t at the tail. The queue owns the caller's reference.
func (q *RunQueue) Push(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.n)%len(q.buf)] = t
	q.n++
	q.length.Store(int32(q.n))
}

// Pop removes the head, or returns nil when empty.
func (q *RunQueue) Pop() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == 0 {
		return nil
	}
	t := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	q.length.Store(int32(q.n))
	return t
}

// Len is a snapshot; it may be stale by the time the caller acts on it.
func (q *RunQueue) Len() int { return int(q.length.Load()) }

// IDs lists queued task ids head first.
func (q *RunQueue) IDs() []TaskID {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]TaskID, 0, q.n)
	for i := 0; i < q.n; i++ {
		ids = append(ids, q.buf[(q.head+i)%len(q.buf)].id)
	}
	return ids
}

func (q *RunQueue) grow() {
	size := 2 * len(q.buf)
	if size == 0 {
		size = 8
	}
	buf := make([]*Task, size)
	for i := 0; i < q.n; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}
