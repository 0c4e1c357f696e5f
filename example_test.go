package threadcache_test

import (
	"context"
	"fmt"

	"github.com/xylose/go-threadcache"
	"github.com/xylose/go-threadcache/core"
)

type square struct {
	x, result int
}

func (s *square) Run(ctx context.Context) error {
	s.result = s.x * s.x
	return nil
}

func (s *square) Execute(ctx context.Context) error {
	return s.Run(ctx)
}

func (s *square) Accept(acc *int) {
	*acc += s.result
}

// ExampleGather scatters ten functors and folds their results.
func ExampleGather() {
	pool := threadcache.NewWorkerPoolWithConfig("example", 4, &core.PoolConfig{Logger: core.NewNoOpLogger()})
	defer pool.Shutdown()

	eval := threadcache.NewEvaluator[*square](pool)
	for i := range 10 {
		_ = eval.Eval(&square{x: i})
	}

	var sum int
	if err := threadcache.Gather(context.Background(), eval, &sum); err != nil {
		fmt.Println("error:", err)
	}
	fmt.Println("sum of squares:", sum)
	fmt.Println("pending:", eval.Pending())

	// Output:
	// sum of squares: 285
	// pending: 0
}

// ExampleWorkerPool_WaitForTasks shows the explicit handle model.
func ExampleWorkerPool_WaitForTasks() {
	pool := threadcache.NewWorkerPoolWithConfig("example", 2, &core.PoolConfig{Logger: core.NewNoOpLogger()})
	defer pool.Shutdown()

	pending := threadcache.NewTaskSet()
	for i := 1; i <= 5; i++ {
		h, err := pool.Submit(&square{x: i})
		if err != nil {
			fmt.Println("submit:", err)
			return
		}
		pending.Add(h)
	}

	sum, finished := 0, 0
	for pending.Len() > 0 {
		done, err := pool.WaitForTasks(context.Background(), pending)
		if err != nil {
			fmt.Println("wait:", err)
			return
		}
		for _, h := range done.Handles() {
			sum += h.Task().(*square).result
			finished++
		}
		pending = pending.Difference(done)
	}
	fmt.Printf("sum: %d, finished %d tasks\n", sum, finished)

	// Output:
	// sum: 55, finished 5 tasks
}
