package core

import (
	"sync"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// TaskQueue defines the interface for pending-task queue implementations
type TaskQueue interface {
	Push(h *Handle)
	Pop() (*Handle, bool)
	Len() int
	IsEmpty() bool
}

// =============================================================================
// FIFOTaskQueue: mutex-guarded slice queue
// =============================================================================

type FIFOTaskQueue struct {
	mu    sync.Mutex
	tasks []*Handle
}

func NewFIFOTaskQueue() *FIFOTaskQueue {
	return &FIFOTaskQueue{
		tasks: make([]*Handle, 0, defaultQueueCap),
	}
}

func (q *FIFOTaskQueue) Push(h *Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, h)
}

func (q *FIFOTaskQueue) Pop() (*Handle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	h := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()

	return h, true
}

// maybeCompactLocked shrinks the backing array once most of it is unused.
// Pop calls it with q.mu held.
func (q *FIFOTaskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]*Handle, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]*Handle, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

func (q *FIFOTaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *FIFOTaskQueue) IsEmpty() bool {
	return q.Len() == 0
}
