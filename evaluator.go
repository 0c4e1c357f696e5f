package threadcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/xylose/go-threadcache/core"
)

// Functor is the unit of work scattered by an Evaluator.
type Functor interface {
	Run(ctx context.Context) error
}

// GatherFunctor is a Functor whose result can be folded into an
// accumulator of type A.
type GatherFunctor[A any] interface {
	Functor
	Accept(acc A)
}

// functorTask adapts a functor to core.Task. It is owned by one handle.
type functorTask[F Functor] struct {
	fn F
}

func (t *functorTask[F]) Execute(ctx context.Context) error {
	return t.fn.Run(ctx)
}

// Evaluator scatters copies of a functor type over a WorkerPool and joins
// them again. It is meant to live for one batch of work.
//
// An Evaluator is safe for concurrent use, but the usual pattern is one
// goroutine calling Eval repeatedly and then JoinAll or Gather once.
type Evaluator[F Functor] struct {
	id   string
	pool *WorkerPool

	mu      sync.Mutex
	pending core.TaskSet
	seq     int
}

// NewEvaluator creates an Evaluator bound to pool. A nil pool uses
// GlobalPool().
func NewEvaluator[F Functor](pool *WorkerPool) *Evaluator[F] {
	if pool == nil {
		pool = GlobalPool()
	}
	return &Evaluator[F]{
		id:      "eval-" + uuid.NewString()[:8],
		pool:    pool,
		pending: core.NewTaskSet(),
	}
}

// ID returns the evaluator's identifier, used as the prefix of task names.
func (e *Evaluator[F]) ID() string {
	return e.id
}

// Eval submits f for execution and returns without waiting.
func (e *Evaluator[F]) Eval(f F) error {
	e.mu.Lock()
	e.seq++
	name := fmt.Sprintf("%s[%d]", e.id, e.seq)
	e.mu.Unlock()

	h := core.NewNamedHandle(name, &functorTask[F]{fn: f})
	if err := e.pool.SubmitHandle(h); err != nil {
		return err
	}

	e.mu.Lock()
	e.pending.Add(h)
	e.mu.Unlock()
	return nil
}

// Pending returns the number of submitted functors not yet joined.
func (e *Evaluator[F]) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Len()
}

// JoinAll waits for every functor submitted so far. Failed functors do not
// stop the wait; their *core.TaskExecutionError values are combined into
// the returned error (see multierr.Errors).
//
// If ctx ends first, the functors still running stay pending and ctx.Err()
// is appended to the returned error.
func (e *Evaluator[F]) JoinAll(ctx context.Context) error {
	return e.drain(ctx, nil)
}

// Gather waits like JoinAll and calls Accept(acc) once for every functor
// that succeeded, in the order they finished. acc is only touched by the
// calling goroutine.
func Gather[A any, F GatherFunctor[A]](ctx context.Context, e *Evaluator[F], acc A) error {
	return e.drain(ctx, func(fn F) {
		fn.Accept(acc)
	})
}

func (e *Evaluator[F]) drain(ctx context.Context, visit func(F)) error {
	e.mu.Lock()
	pending := e.pending
	e.pending = core.NewTaskSet()
	e.mu.Unlock()

	var errs error
	for pending.Len() > 0 {
		finished, err := e.pool.WaitForTasks(ctx, pending)
		if err != nil {
			e.mu.Lock()
			e.pending = e.pending.Union(pending)
			e.mu.Unlock()
			return multierr.Append(errs, err)
		}

		for _, h := range finished.Handles() {
			if taskErr := h.Err(); taskErr != nil {
				errs = multierr.Append(errs, taskErr)
				continue
			}
			if visit != nil {
				visit(h.Task().(*functorTask[F]).fn)
			}
		}
		pending = pending.Difference(finished)
	}
	return errs
}
