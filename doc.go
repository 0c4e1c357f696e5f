// Package threadcache provides a fixed-size worker pool with two ways of
// submitting work: a scatter/gather Evaluator and explicit task handles.
//
// Both models share one FIFO queue per pool. Workers are started lazily on
// the first submission and live until Shutdown.
//
// # Quick Start
//
// Scatter work with an Evaluator and fold the results into an accumulator:
//
//	type Sum struct{ Value float64 }
//
//	type Square struct{ X, Result float64 }
//
//	func (s *Square) Run(ctx context.Context) error { s.Result = s.X * s.X; return nil }
//	func (s *Square) Accept(acc *Sum)                { acc.Value += s.Result }
//
//	eval := threadcache.NewEvaluator[*Square](nil) // nil = GlobalPool()
//	for i := range 10 {
//		eval.Eval(&Square{X: float64(i)})
//	}
//	var sum Sum
//	err := threadcache.Gather(ctx, eval, &sum)
//
// Or own the tasks yourself and collect them as they finish:
//
//	pending := threadcache.NewTaskSet()
//	for _, t := range tasks {
//		h, _ := pool.Submit(t)
//		pending.Add(h)
//	}
//	for pending.Len() > 0 {
//		finished, err := pool.WaitForTasks(ctx, pending)
//		if err != nil {
//			return err
//		}
//		for _, h := range finished.Handles() {
//			// h.Task() may be read now; h.Err() reports failures.
//		}
//		pending = pending.Difference(finished)
//	}
//
// # Key Concepts
//
// Handle: the identity of one submitted task. A handle is submitted once;
// resubmitting work means creating a new task. Once a handle is observed
// finished the task's fields may be read without further synchronization.
//
// WaitForTasks: blocks until at least one handle of a pending set finished
// and returns all of them. It never modifies the caller's set.
//
// Failures: a task that returns an error or panics still finishes. The
// failure is recorded as a *TaskExecutionError on its handle and never
// retried by the pool.
//
// # Global Pool
//
// GlobalPool returns a process-wide pool sized by SetMaxThreads, the
// NUM_PTHREADS environment variable or GOMAXPROCS, in that order. Call
// SetMaxThreads before the first submission and ShutdownGlobalPool before
// the process exits.
package threadcache
