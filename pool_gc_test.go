package threadcache_test

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xylose/go-threadcache"
	"github.com/xylose/go-threadcache/core"
)

// payload is a task holding a buffer large enough to matter if it leaked.
type payload struct {
	buf []byte
}

func (p *payload) Execute(ctx context.Context) error {
	p.buf[0] = 1
	return nil
}

func quietPool(id string, workers int) *threadcache.WorkerPool {
	return threadcache.NewWorkerPoolWithConfig(id, workers, &core.PoolConfig{Logger: core.NewNoOpLogger()})
}

// collectUntil runs the GC until done reports true or about a second passed.
func collectUntil(done func() bool) bool {
	for range 100 {
		runtime.GC()
		if done() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return done()
}

// TestWorkerPool_GC_FinishedTasksReleased tests finished tasks are not pinned by the pool
// Given: 200 tasks holding 64 KiB each, consumed through Handle.Done only
// When: the submitter drops every handle while the pool keeps running
// Then: all tasks are garbage collected although no waiter collected them
func TestWorkerPool_GC_FinishedTasksReleased(t *testing.T) {
	// Arrange
	const n = 200
	pool := quietPool("gc-finished", 4)
	defer pool.Shutdown()

	var finalized atomic.Int32
	handles := make([]*core.Handle, 0, n)
	for range n {
		task := &payload{buf: make([]byte, 64<<10)}
		runtime.SetFinalizer(task, func(*payload) { finalized.Add(1) })
		h, err := pool.Submit(task)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		handles = append(handles, h)
	}

	// Act
	for _, h := range handles {
		<-h.Done()
	}
	if got := pool.FinishedTaskCount(); got != n {
		t.Errorf("FinishedTaskCount() = %d, want %d", got, n)
	}
	handles = nil

	// Assert
	if !collectUntil(func() bool { return finalized.Load() == n }) {
		t.Errorf("tasks GC'd: got = %d, want = %d", finalized.Load(), n)
	}
	if !pool.IsRunning() {
		t.Error("pool stopped during the test")
	}
}

// TestWorkerPool_GC_ShutdownPool tests a shut-down pool is collectable
// Given: a pool that ran tasks nobody waited for
// When: the pool is shut down and every reference is dropped
// Then: both the pool and its tasks are garbage collected
func TestWorkerPool_GC_ShutdownPool(t *testing.T) {
	// Arrange
	const n = 20
	var poolFinalized atomic.Bool
	var tasksFinalized atomic.Int32

	pool := quietPool("gc-shutdown", 2)
	runtime.SetFinalizer(pool, func(*threadcache.WorkerPool) { poolFinalized.Store(true) })

	for range n {
		task := &payload{buf: make([]byte, 1<<10)}
		runtime.SetFinalizer(task, func(*payload) { tasksFinalized.Add(1) })
		if _, err := pool.Submit(task); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	// Act
	pool.Shutdown()
	pool = nil

	// Assert
	if !collectUntil(func() bool { return poolFinalized.Load() && tasksFinalized.Load() == n }) {
		t.Errorf("pool GC'd: got = %v, want = true", poolFinalized.Load())
		t.Errorf("tasks GC'd: got = %d, want = %d", tasksFinalized.Load(), n)
	}
}

// TestEvaluator_GC_AfterJoin tests an evaluator keeps nothing alive once joined
// Given: an evaluator whose functors were gathered
// When: the evaluator is dropped
// Then: the evaluator is garbage collected while its pool keeps running
func TestEvaluator_GC_AfterJoin(t *testing.T) {
	// Arrange
	pool := quietPool("gc-eval", 2)
	defer pool.Shutdown()

	var finalized atomic.Bool
	eval := threadcache.NewEvaluator[*gcFunctor](pool)
	runtime.SetFinalizer(eval, func(*threadcache.Evaluator[*gcFunctor]) { finalized.Store(true) })
	for range 10 {
		if err := eval.Eval(&gcFunctor{}); err != nil {
			t.Fatalf("Eval() error = %v", err)
		}
	}

	// Act
	if err := eval.JoinAll(context.Background()); err != nil {
		t.Fatalf("JoinAll() error = %v", err)
	}
	eval = nil

	// Assert
	if !collectUntil(finalized.Load) {
		t.Error("Evaluator GC'd: got = false, want = true")
	}
}

type gcFunctor struct{}

func (gcFunctor) Run(ctx context.Context) error { return nil }
