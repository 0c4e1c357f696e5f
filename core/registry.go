package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Registry tracks which submitted handles have finished and lets submitters
// block until any member of a pending set finishes.
//
// Finishing a handle closes the current broadcast channel and installs a new
// one, so waiters sleep on a channel receive instead of polling.
//
// The registry never references a handle: a finished task is reachable only
// through its submitter.
type Registry struct {
	mu      sync.Mutex
	changed chan struct{}

	uncollected atomic.Int64 // finished and not yet returned by WaitForTasks
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		changed: make(chan struct{}),
	}
}

// Accept claims h for this registry and marks it queued. It fails if h is
// nil, has no task, or was already submitted.
func (r *Registry) Accept(h *Handle) error {
	if h == nil {
		return InvalidArgumentError("nil handle")
	}
	if h.task == nil {
		return InvalidArgumentError("%s has no task", h.id)
	}
	if !h.owner.CompareAndSwap(nil, r) {
		return InvalidArgumentError("%s was already submitted", h.id)
	}
	h.submittedAt = time.Now()
	h.state.Store(int32(handleQueued))
	return nil
}

// Release undoes Accept for a handle that was never queued, so it can be
// submitted elsewhere.
func (r *Registry) Release(h *Handle) {
	if h.owner.CompareAndSwap(r, nil) {
		h.state.Store(int32(handleCreated))
	}
}

// Finish publishes h as finished and wakes every waiter. The executing
// worker calls MarkFinished first. The lock and the closed done channel make
// the task's fields visible to whichever goroutine later observes h as
// finished.
func (r *Registry) Finish(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.finishedAt.IsZero() {
		h.finishedAt = time.Now()
	}
	h.state.Store(int32(handleFinished))
	close(h.done)

	r.uncollected.Add(1)
	close(r.changed)
	r.changed = make(chan struct{})
}

// WaitForTasks blocks until at least one handle in pending has finished and
// returns every handle of pending that has. pending itself is not modified;
// callers remove the returned handles before waiting again.
//
// Returned handles stay finished, so passing one again returns it again.
// The wait is bounded only by ctx.
func (r *Registry) WaitForTasks(ctx context.Context, pending TaskSet) (TaskSet, error) {
	if pending.Len() == 0 {
		return nil, InvalidArgumentError("empty pending set")
	}
	for h := range pending {
		if h == nil {
			return nil, InvalidArgumentError("nil handle in pending set")
		}
		if h.owner.Load() != r {
			return nil, InvalidArgumentError("%s was not submitted to this pool", h.id)
		}
	}

	for {
		r.mu.Lock()
		var done TaskSet
		for h := range pending {
			if !h.Finished() {
				continue
			}
			if done == nil {
				done = make(TaskSet)
			}
			done.Add(h)
			if h.collected.CompareAndSwap(false, true) {
				r.uncollected.Add(-1)
			}
		}
		if done != nil {
			r.mu.Unlock()
			return done, nil
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// FinishedCount returns the number of finished handles no caller has
// collected through WaitForTasks yet.
func (r *Registry) FinishedCount() int {
	return int(r.uncollected.Load())
}
